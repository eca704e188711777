// Package config loads the back end's tunable knobs from a YAML file:
// the spill-retry cap, source-map emission, constant-pool dedup, and
// template field-sort diagnostics.
//
// Grounded on the teacher's own target/flag globals in
// std/compiler/main.go (targetBackend, targetWordSize, compilerDebug,
// ...), moved from package-level vars set by manual os.Args parsing into
// an explicit struct a driver loads once and passes down — generalized
// further using the YAML decoding the rest of the retrieval pack reaches
// for (sigs.k8s.io/yaml) rather than a bespoke flag parser.
package config

import (
	"os"

	"sigs.k8s.io/yaml"
)

// BackendConfig holds the back end's knobs. Zero value is a usable
// default configuration.
type BackendConfig struct {
	// MaxSpillRetries is a spill-retry cap for the allocator. It is
	// loaded (0 becomes 64) but nothing reads it: internal/regalloc's
	// coloring loop has no retry cap.
	MaxSpillRetries int `json:"maxSpillRetries,omitempty"`

	// EmitSourceMap toggles whether the linker's caller should also
	// produce a source-map text (optionally gzip) alongside the image.
	EmitSourceMap bool `json:"emitSourceMap,omitempty"`

	// GzipSourceMap compresses the emitted source map when EmitSourceMap
	// is set.
	GzipSourceMap bool `json:"gzipSourceMap,omitempty"`

	// DedupConstants enables SipHash-assisted constant-pool
	// deduplication (disabled by default, spec.md §9).
	DedupConstants bool `json:"dedupConstants,omitempty"`

	// PruneDeadFunctions enables the linker's reachability-based dead
	// function elimination pass.
	PruneDeadFunctions bool `json:"pruneDeadFunctions,omitempty"`

	// WarnUnsortedTemplates is a toggle for a warning when a struct or
	// class's declared field order differs from its emitted field-ID
	// order. It is loaded but nothing reads it; no such warning is
	// produced.
	WarnUnsortedTemplates bool `json:"warnUnsortedTemplates,omitempty"`
}

// Default returns the configuration the back end uses when no file is
// given.
func Default() BackendConfig {
	return BackendConfig{
		MaxSpillRetries: 64,
	}
}

// Load reads and parses a BackendConfig from path, filling in any field
// the file omits with Default()'s value.
func Load(path string) (BackendConfig, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if cfg.MaxSpillRetries == 0 {
		cfg.MaxSpillRetries = 64
	}
	return cfg, nil
}
