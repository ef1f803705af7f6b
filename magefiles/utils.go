//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// goCmd runs the go tool. Output streams to the terminal when stream is set
// or mage runs verbose, otherwise it is shown only when the command fails.
func goCmd(stream bool, args ...string) error {
	fmt.Printf("Executing: %s %s\n", mg.GoCmd(), strings.Join(args, " "))
	if stream || mg.Verbose() {
		return sh.RunV(mg.GoCmd(), args...)
	}
	out, err := sh.Output(mg.GoCmd(), args...)
	if err != nil {
		fmt.Println("... failed command output:")
		fmt.Println(out)
		return fmt.Errorf("go %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
