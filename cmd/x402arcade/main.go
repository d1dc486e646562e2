// Command x402arcade runs the arcade's payment-gated API and a paying client
// for it. Configuration comes from the environment, optionally loaded from a
// .env file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
