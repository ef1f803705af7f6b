//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Records the testbed streams. RECORDER_CONFIG points at a TOML config to watch.
func (Run) Demo() error {
	args := []string{"run", "."}
	if path := os.Getenv("RECORDER_CONFIG"); path != "" {
		args = append(args, "-config", path)
	}
	fmt.Println("Run demo...")
	return goCmd(true, args...)
}
