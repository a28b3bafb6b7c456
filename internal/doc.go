// Package internal contains helpers private to authcore: one-time code
// generation and hashing, and email normalization.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - metrics: counter definitions shared by the engine and exporters
//
// Nothing here appears in the public authcore API.
package internal
