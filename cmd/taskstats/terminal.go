package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// enableSingleView switches a terminal stdout to the alternate screen so each
// refresh replaces the previous one. It is a no-op when stdout is piped.
func enableSingleView(log *zap.Logger) func() {
	stdoutFD := int(os.Stdout.Fd())
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdoutFD) {
		return func() {}
	}

	fmt.Print("\033[?1049h") // switch to alternate buffer
	fmt.Print("\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			log.Warn("unable to suppress stdin echo", zap.Error(err))
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Print("\033[?25h")   // show cursor
		fmt.Print("\033[?1049l") // restore main buffer
	}
}
