package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/latticeforge/vbcc/internal/config"
	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/linker"
	"github.com/latticeforge/vbcc/internal/srcmap"
)

func newCompileCmd() *cobra.Command {
	var output string
	var configPath string
	var prune bool
	var dedup bool
	var emitMap bool
	var gzipMap bool
	var buildID bool
	var digest bool

	cmd := &cobra.Command{
		Use:   "compile <fixture.json>",
		Short: "lower, allocate, encode, and link a fixture into an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("prune") {
				cfg.PruneDeadFunctions = prune
			}
			if cmd.Flags().Changed("dedup") {
				cfg.DedupConstants = dedup
			}
			if cmd.Flags().Changed("srcmap") {
				cfg.EmitSourceMap = emitMap
			}
			if cmd.Flags().Changed("gzip-srcmap") {
				cfg.GzipSourceMap = gzipMap
			}

			fx, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			m, interner, err := buildModule(fx)
			if err != nil {
				return err
			}
			diag.Logf("lowered %d functions", len(m.Funcs))

			img, err := linker.Link(m, interner, linker.Options{
				PruneDeadFunctions: cfg.PruneDeadFunctions,
				Dedup:              cfg.DedupConstants,
				StampBuildID:       buildID,
				ComputeDigest:      digest,
			})
			if err != nil {
				return fmt.Errorf("linking: %w", err)
			}
			diag.Logf("linked image: %d bytes, %d functions placed", len(img.Bytes), len(img.Sizes))
			if img.BuildID != "" {
				fmt.Printf("build id: %s\n", img.BuildID)
			}
			if digest {
				fmt.Printf("digest: %x\n", img.Digest)
			}

			if err := os.WriteFile(output, img.Bytes, 0644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}

			if cfg.EmitSourceMap {
				if err := writeSourceMaps(m, cfg, output+".srcmap"); err != nil {
					return fmt.Errorf("writing source map: %w", err)
				}
				diag.Logf("wrote source map %s", output+".srcmap")
			}
			fmt.Printf("wrote %s (%d bytes)\n", output, len(img.Bytes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "out.img", "output image path")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML backend config file")
	cmd.Flags().BoolVar(&prune, "prune", false, "eliminate functions unreachable from main")
	cmd.Flags().BoolVar(&dedup, "dedup", false, "deduplicate identical string constants")
	cmd.Flags().BoolVar(&emitMap, "srcmap", false, "also emit a source map alongside the image")
	cmd.Flags().BoolVar(&gzipMap, "gzip-srcmap", false, "gzip the emitted source map")
	cmd.Flags().BoolVar(&buildID, "build-id", false, "stamp the image with a random build identifier")
	cmd.Flags().BoolVar(&digest, "digest", false, "compute a BLAKE2b-256 digest of the linked image")
	return cmd
}

// writeSourceMaps builds one source-map entry stream per function
// (post-link, so each instruction carries its final spill-adjusted
// position) and writes them concatenated to path, each function's block
// preceded by a "# <name>" marker line.
func writeSourceMaps(m *ir.Module, cfg config.BackendConfig, path string) error {
	var buf bytes.Buffer
	for _, fn := range m.Funcs {
		entries, err := srcmap.Build(fn)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "# %s\n", fn.Name)
		if err := srcmap.Write(&buf, entries); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if cfg.GzipSourceMap {
		gz := gzip.NewWriter(f)
		if _, err := gz.Write(buf.Bytes()); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	}
	_, err = f.Write(buf.Bytes())
	return err
}
