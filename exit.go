package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

// errRunFailed signals a run that already reported its failure to the user.
var errRunFailed = errors.New("run failed")

// waitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func waitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// fatalWithWait logs a fatal error and waits on Windows before exiting.
func fatalWithWait(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error().Msg(msg)
	fmt.Fprintln(os.Stderr, msg)
	waitOnWindows()
	os.Exit(1)
}
