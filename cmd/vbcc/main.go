// Command vbcc drives the back end pipeline end to end: load a typed-IR
// fixture, lower it, allocate registers, encode, and link a runnable
// image — plus inspection subcommands for the intermediate stages.
//
// Grounded on the teacher's own driver in std/compiler/main.go (a
// single binary gluing parse -> resolve -> IR -> codegen -> output
// together, with a -debug flag for stage-by-stage progress lines), but
// built as a spf13/cobra command tree the way the retrieval pack's
// other CLI tools (cmd/z80opt) are, rather than the teacher's own
// manual os.Args loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeforge/vbcc/internal/diag"
)

func main() {
	var debug bool

	root := &cobra.Command{
		Use:   "vbcc",
		Short: "register-machine back end: typed IR in, linked image out",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				diag.SetLogger(func(format string, a ...any) {
					fmt.Fprintf(os.Stderr, "debug: "+format+"\n", a...)
				})
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "emit stage-by-stage progress to stderr")

	root.AddCommand(
		newCompileCmd(),
		newDumpIRCmd(),
		newSizesCmd(),
		newDisasmCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
