/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command taskworker serves a demo task worker over stdio (newline-delimited JSON) or HTTP
// and dispatches tasks to a remote worker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
