/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-renderer/engine"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/testbed"
)

func main() {
	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		e.Stop()
	}()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		code = 1
	} else if err := e.Run(); err != nil {
		code = 1
	}

	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown failed: %s", err)
		code = 1
	}
	os.Exit(code)
}
