package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDumpIRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-ir <fixture.json>",
		Short: "lower a fixture and print its per-function instruction stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			m, _, err := buildModule(fx)
			if err != nil {
				return err
			}
			for _, fn := range m.Funcs {
				fmt.Printf("func %s (uid=%d, args=%d, temps=%d)\n", fn.Name, fn.UID, fn.ArgCount, fn.NumTemps)
				for i, inst := range fn.Code {
					fmt.Printf("  %4d  %s\n", i, instText(inst))
				}
			}
			return nil
		},
	}
	return cmd
}
