// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Command expensed runs the expense approval service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
