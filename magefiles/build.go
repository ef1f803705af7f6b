//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds every package and the demo binary.
func (Build) All() error {
	if err := goCmd(false, "mod", "tidy"); err != nil {
		return err
	}
	if err := goCmd(true, "build", "./..."); err != nil {
		return err
	}
	return goCmd(true, "build", "-o", "bin/recorder", ".")
}

type Test mg.Namespace

// Runs the unit tests of every package.
func (Test) Unit() error {
	return goCmd(true, "test", "./...")
}

// Runs the unit tests with the race detector, recorders share heaps and metrics.
func (Test) Race() error {
	return goCmd(true, "test", "-race", "-count=1", "./...")
}
