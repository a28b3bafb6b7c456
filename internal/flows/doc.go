// Package flows holds the orchestration behind every Engine operation.
//
// Each RunX function takes a typed dependency struct carrying the store, the
// credential primitives, the host's sentinel errors and its metric and audit
// identifiers. Flows never import the root package; the engine translates its
// configuration into these structs once at build time.
//
// Every write a flow performs goes through a single store.Transact call so a
// failed condition leaves nothing behind.
package flows
