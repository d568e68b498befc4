package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/lox/compiler"
	"github.com/cloudcmds/lox/dis"
	"github.com/cloudcmds/lox/object"
)

func disCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dis <script>",
		Short: "Disassemble compiled Lox bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("could not read %q: %w", args[0], err)
			}
			heap := object.NewHeap()
			fn, err := compiler.Compile(string(source), heap)
			if err != nil {
				printError(err)
				os.Exit(exitCodeCompileError)
			}
			disassembleAll(fn)
			return nil
		},
	}
}

// disassembleAll lists the script chunk followed by every function in its
// constant pool, recursively, so nested closures are covered.
func disassembleAll(fn *object.Function) {
	dis.Disassemble(fn.Chunk, fn.String(), os.Stdout)
	for _, constant := range fn.Chunk.Constants {
		if !constant.IsObject() {
			continue
		}
		if nested, ok := constant.AsObject().(*object.Function); ok {
			fmt.Println()
			disassembleAll(nested)
		}
	}
}
