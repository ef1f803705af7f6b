/*
Records the testbed sample streams on the configured backend and prints the
recording metrics. With -config the file is watched and every change records
another frame.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/zxgjxc/dawn-ray-tracing/engine"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to the recorder TOML config")
	flag.Parse()

	tb := testbed.NewTestGame(*configPath)

	e, err := engine.New(tb.Game)
	if err != nil {
		os.Exit(1)
	}

	if err := e.Initialize(); err != nil {
		core.LogError("%s", err.Error())
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("%s", err.Error())
	}
	if runErr != nil {
		core.LogError("%s", runErr.Error())
		os.Exit(1)
	}
}
