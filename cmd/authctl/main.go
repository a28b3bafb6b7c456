// Command authctl drives an authcore engine from the shell: apply migrations,
// check a configuration, and run the session and password reset operations
// against a configured backend.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
