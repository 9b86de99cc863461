package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrUnknownSanitizer is returned for an unsupported sanitizer kind
var ErrUnknownSanitizer = errors.New("unknown sanitizer kind")

// Sanitizer kinds accepted by SanitizerConfig
const (
	SanitizerNone       = "none"
	SanitizerCharset    = "charset"
	SanitizerPrometheus = "prometheus"
)

// SanitizerConfig describes a sanitizer in configuration files
type SanitizerConfig struct {
	// Kind is one of none, charset or prometheus. Empty means none.
	Kind string `yaml:"kind"`

	// Charset options
	Pattern     string `yaml:"pattern,omitempty"`
	Replacement string `yaml:"replacement,omitempty"`

	// Log wraps the sanitizer with LoggingSanitizer
	Log bool `yaml:"log,omitempty"`
}

// DefaultSanitizerConfig returns the charset sanitizer configuration
func DefaultSanitizerConfig() SanitizerConfig {
	return SanitizerConfig{
		Kind:        SanitizerCharset,
		Pattern:     DefaultInvalidChars,
		Replacement: DefaultReplacement,
	}
}

// ParseSanitizerConfig decodes a YAML sanitizer configuration.
// Unknown fields are rejected; empty input yields the none kind.
func ParseSanitizerConfig(data []byte) (SanitizerConfig, error) {
	var cfg SanitizerConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return SanitizerConfig{}, fmt.Errorf("failed to parse sanitizer config: %w", err)
	}
	return cfg, nil
}

// LoadSanitizerConfig reads and decodes a YAML sanitizer configuration file
func LoadSanitizerConfig(path string) (SanitizerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SanitizerConfig{}, fmt.Errorf("failed to read sanitizer config: %w", err)
	}
	return ParseSanitizerConfig(data)
}

// Sanitizer creates the configured sanitizer. The none kind yields nil.
func (c SanitizerConfig) Sanitizer(logger *zap.Logger) (Sanitizer, error) {
	var s Sanitizer

	switch c.Kind {
	case "", SanitizerNone:
		return nil, nil
	case SanitizerCharset:
		cs, err := NewCharsetSanitizer(
			pickString(c.Pattern, DefaultInvalidChars),
			pickString(c.Replacement, DefaultReplacement))
		if err != nil {
			return nil, err
		}
		s = cs
	case SanitizerPrometheus:
		s = PrometheusSanitizer()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSanitizer, c.Kind)
	}

	if c.Log {
		s = LoggingSanitizer(s, logger)
	}
	return s, nil
}

// InstallSanitizer creates the configured sanitizer and makes it the
// process-wide one. The none kind removes the current sanitizer.
func InstallSanitizer(c SanitizerConfig, logger *zap.Logger) error {
	s, err := c.Sanitizer(logger)
	if err != nil {
		return err
	}
	SetConfigSanitizer(s)
	return nil
}

func pickString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
