// Package config defines the pipeline configuration.
//
// A Config is declarative: it names the capture store, compression and
// namespace rewriting a pipeline should apply, and is turned into live
// components by the pipeline package. Configuration is read from a
// versioned JSON file and then overlaid with PIPESTREAM_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pipestream/internal/capture"
	"pipestream/internal/codec"
	"pipestream/internal/xmlns"
)

// Config describes how payloads flowing through a pipeline are handled.
type Config struct {
	Capture CaptureConfig `json:"capture" envPrefix:"CAPTURE_"`
	Codec   CodecConfig   `json:"codec" envPrefix:"CODEC_"`
	Rewrite RewriteConfig `json:"rewrite" envPrefix:"REWRITE_"`

	// MarkLimit bounds the probe rewind buffer ("64KB", "1MB"). Empty means
	// unbounded.
	MarkLimit string `json:"markLimit,omitempty" env:"MARK_LIMIT"`
}

// CaptureConfig selects where payloads are captured.
type CaptureConfig struct {
	// Enabled turns on a claimed capture for every payload.
	Enabled bool `json:"enabled" env:"ENABLED"`

	// Mode is "claimed" or "unclaimed".
	Mode string `json:"mode,omitempty" env:"MODE"`

	// Type identifies the store implementation ("file", "memory", "s3",
	// "gcs", "azure").
	Type string `json:"type" env:"TYPE"`

	// Params are passed to the store factory.
	Params map[string]string `json:"params,omitempty" env:"PARAMS" envKeyValSeparator:"="`
}

// CodecConfig describes payload compression at the edges of a pipeline.
type CodecConfig struct {
	// Decompress is the format of incoming payloads. Empty means
	// uncompressed.
	Decompress string `json:"decompress,omitempty" env:"DECOMPRESS"`

	// Compress is the format written by the compress command.
	Compress string `json:"compress,omitempty" env:"COMPRESS"`

	// EntryName names the entry in zip and gzip output.
	EntryName string `json:"entryName,omitempty" env:"ENTRY_NAME"`

	// BufferSize bounds how much source data one read pulls ("32KB").
	BufferSize string `json:"bufferSize,omitempty" env:"BUFFER_SIZE"`

	Level int `json:"level,omitempty" env:"LEVEL"`
}

// RewriteConfig configures namespace rewriting.
type RewriteConfig struct {
	// Rules are "match=replace" translations, evaluated in order.
	Rules []string `json:"rules,omitempty" env:"RULES" envSeparator:";"`

	// Override makes these rules replace, rather than extend, rules given
	// on the command line.
	Override bool `json:"override,omitempty" env:"OVERRIDE"`

	Attributes        bool   `json:"attributes,omitempty" env:"ATTRIBUTES"`
	AbsorbDeclaration bool   `json:"absorbDeclaration,omitempty" env:"ABSORB_DECLARATION"`
	ForceDeclaration  bool   `json:"forceDeclaration,omitempty" env:"FORCE_DECLARATION"`
	Encoding          string `json:"encoding,omitempty" env:"ENCODING"`
}

// Default returns the configuration used when no file exists. If dataDir is
// non-empty, captures go to a file store under <dataDir>/captures.
// Otherwise they are kept in memory.
func Default(dataDir string) *Config {
	cfg := &Config{
		Capture: CaptureConfig{
			Mode: capture.Claimed.String(),
			Type: "memory",
		},
	}
	if dataDir != "" {
		cfg.Capture.Type = "file"
		cfg.Capture.Params = map[string]string{
			"dir": dataDir + "/captures",
		}
	}
	return cfg
}

// Enabled reports whether the rewrite section asks for any rewriting.
func (r RewriteConfig) Enabled() bool {
	return len(r.Rules) > 0 || r.AbsorbDeclaration || r.ForceDeclaration || r.Encoding != ""
}

// TranslationSet compiles the configured rules.
func (r RewriteConfig) TranslationSet() (*xmlns.TranslationSet, error) {
	rules := make([]xmlns.Rule, 0, len(r.Rules))
	for _, s := range r.Rules {
		rule, err := xmlns.ParseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return xmlns.NewTranslationSet(r.Override, rules...)
}

// Options returns the rewriter options for this section.
func (r RewriteConfig) Options() []xmlns.Option {
	var opts []xmlns.Option
	if r.Attributes {
		opts = append(opts, xmlns.WithAttributes())
	}
	if r.AbsorbDeclaration {
		opts = append(opts, xmlns.WithAbsorbDeclaration())
	}
	if r.ForceDeclaration {
		opts = append(opts, xmlns.WithForceDeclaration())
	}
	if r.Encoding != "" {
		opts = append(opts, xmlns.WithEncoding(r.Encoding))
	}
	return opts
}

// CaptureMode parses the capture mode, defaulting to claimed.
func (c CaptureConfig) CaptureMode() (capture.Mode, error) {
	if c.Mode == "" {
		return capture.Claimed, nil
	}
	return capture.ParseMode(c.Mode)
}

// DecompressFormat returns the incoming payload format. ok is false when
// payloads are not compressed.
func (c CodecConfig) DecompressFormat() (f codec.Format, ok bool, err error) {
	if c.Decompress == "" || strings.EqualFold(c.Decompress, "none") {
		return 0, false, nil
	}
	f, err = codec.ParseFormat(c.Decompress)
	return f, err == nil, err
}

// Options returns codec options for format f.
func (c CodecConfig) Options(f codec.Format) (codec.Options, error) {
	opts := codec.Options{Format: f, EntryName: c.EntryName, Level: c.Level}
	if c.BufferSize != "" {
		n, err := ParseBytes(c.BufferSize)
		if err != nil {
			return codec.Options{}, fmt.Errorf("invalid codec bufferSize: %w", err)
		}
		opts.BufferSize = int(n)
	}
	return opts, nil
}

// MarkLimitBytes parses MarkLimit. Zero means unbounded.
func (c *Config) MarkLimitBytes() (int, error) {
	if c.MarkLimit == "" {
		return 0, nil
	}
	n, err := ParseBytes(c.MarkLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid markLimit: %w", err)
	}
	return int(n), nil
}

// Validate checks every section and reports all problems at once.
// Store types are not checked here; the capture registry rejects
// unknown ones when the store is opened.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.Enabled && c.Capture.Type == "" {
		errs = append(errs, errors.New("capture: type is required when enabled"))
	}
	if _, err := c.Capture.CaptureMode(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}
	if _, _, err := c.Codec.DecompressFormat(); err != nil {
		errs = append(errs, fmt.Errorf("codec.decompress: %w", err))
	}
	if c.Codec.Compress != "" {
		if _, err := codec.ParseFormat(c.Codec.Compress); err != nil {
			errs = append(errs, fmt.Errorf("codec.compress: %w", err))
		}
	}
	if _, err := c.Codec.Options(codec.Gzip); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Rewrite.TranslationSet(); err != nil {
		errs = append(errs, fmt.Errorf("rewrite: %w", err))
	}
	if _, err := c.MarkLimitBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseBytes parses a byte size string with optional suffix (B, KB, MB, GB).
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	s = strings.ToUpper(s)

	var multiplier uint64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	numStr = strings.TrimSpace(numStr)
	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return n * multiplier, nil
}
