package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticeforge/vbcc/internal/linker"
)

func newSizesCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "sizes <fixture.json>",
		Short: "link a fixture and report each function's final encoded size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			m, interner, err := buildModule(fx)
			if err != nil {
				return err
			}
			img, err := linker.Link(m, interner, linker.Options{PruneDeadFunctions: prune})
			if err != nil {
				return err
			}
			total := 0
			for _, fs := range img.Sizes {
				fmt.Printf("%8d  %s (uid=%d)\n", fs.Size, fs.Name, fs.UID)
				total += fs.Size
			}
			fmt.Printf("%8d  total code bytes (%d bytes, whole image)\n", total, len(img.Bytes))
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "eliminate functions unreachable from main")
	return cmd
}
