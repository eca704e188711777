package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticeforge/vbcc/internal/bytewriter"
	"github.com/latticeforge/vbcc/internal/image"
)

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <image>",
		Short: "print a linked image's header: segment offsets and sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(b) < image.HeaderSize {
				return fmt.Errorf("image too short: %d bytes, header needs %d", len(b), image.HeaderSize)
			}
			var offs [image.NumSegments]uint64
			for i := range offs {
				offs[i] = bytewriter.GetU64(b[i*image.OffsetSize:])
			}
			fmt.Printf("image: %d bytes total\n", len(b))
			for i := 0; i < image.NumSegments; i++ {
				seg := image.Segment(i)
				end := uint64(len(b))
				if i+1 < image.NumSegments {
					end = offs[i+1]
				}
				fmt.Printf("  %-12s offset=%-8d size=%d\n", seg, offs[i], end-offs[i])
			}
			return nil
		},
	}
	return cmd
}
