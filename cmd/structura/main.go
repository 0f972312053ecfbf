// Command structura runs shape engine scenarios, records their cache
// behaviour and offers an interactive shell over a realm.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFailures) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70) // Exit code 70: internal software error
	}
}
