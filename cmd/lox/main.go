package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudcmds/lox"
	"github.com/cloudcmds/lox/vm"
)

const (
	exitCodeCompileError = 65
	exitCodeRuntimeError = 70
)

var (
	version = "dev"
)

func main() {
	root := &cobra.Command{
		Use:     "lox [script]",
		Short:   "The Lox programming language",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE:    runHandler,
		// Exit codes are handled below; cobra should not print errors twice.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("dispatch", "switch", "Dispatch strategy: switch or table")
	root.PersistentFlags().Bool("gc-trace", false, "Log garbage collector activity")
	root.PersistentFlags().Bool("trace", false, "Trace instruction execution")
	for _, flag := range []string{"dispatch", "gc-trace", "trace"} {
		viper.BindPFlag(flag, root.PersistentFlags().Lookup(flag))
	}
	viper.SetEnvPrefix("lox")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root.AddCommand(disCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runHandler(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return repl()
	}
	return runFile(args[0])
}

func runFile(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %q: %w", path, err)
	}
	l := lox.New(interpreterOptions()...)
	defer l.Free()

	runErr := l.Interpret(string(source))
	switch lox.ResultOf(runErr) {
	case lox.CompileError:
		printError(runErr)
		os.Exit(exitCodeCompileError)
	case lox.RuntimeError:
		printError(runErr)
		os.Exit(exitCodeRuntimeError)
	}
	return nil
}

func interpreterOptions() []lox.Option {
	opts := []lox.Option{
		lox.WithDispatch(dispatchMode()),
	}
	if viper.GetBool("gc-trace") {
		opts = append(opts, lox.WithGCLogger(newGCLogger()))
	}
	if viper.GetBool("trace") {
		opts = append(opts, lox.WithTrace(os.Stderr))
	}
	return opts
}

func dispatchMode() vm.DispatchMode {
	if viper.GetString("dispatch") == "table" {
		return vm.DispatchTable
	}
	return vm.DispatchSwitch
}
