package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/cloudcmds/lox"
	"github.com/cloudcmds/lox/errz"
)

var (
	promptColor = color.New(color.FgCyan)
	errorColor  = color.New(color.FgRed)
)

func init() {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// repl reads statements a line at a time. The interpreter is reused across
// lines, so variables defined earlier stay visible.
func repl() error {
	l := lox.New(interpreterOptions()...)
	defer l.Free()

	fmt.Printf("Lox %s\n", version)
	in := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("> ")
		if !in.Scan() {
			fmt.Println()
			return in.Err()
		}
		line := in.Text()
		if line == "" {
			continue
		}
		if err := l.Interpret(line); err != nil {
			printError(err)
		}
	}
}

func printError(err error) {
	if rerr, ok := err.(*errz.RuntimeError); ok {
		errorColor.Fprintln(os.Stderr, rerr.Message)
		fmt.Fprint(os.Stderr, rerr.Backtrace())
		return
	}
	errorColor.Fprintln(os.Stderr, err)
}

func newGCLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}
