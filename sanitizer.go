package monitor

import (
	"fmt"

	"github.com/grafana/regexp"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/nikiz24/monitor/v2/tag"
)

// Sanitizer rewrites the identifiers held by a builder before it is frozen.
// Implementations transform the name and every tag key and value and keep the
// publishing policy. They may return b itself or a new builder.
type Sanitizer interface {
	Sanitize(b *Builder) (*Builder, error)
}

// SanitizerFunc adapts a function to the Sanitizer interface
type SanitizerFunc func(b *Builder) (*Builder, error)

// Sanitize implements Sanitizer
func (f SanitizerFunc) Sanitize(b *Builder) (*Builder, error) {
	return f(b)
}

// DefaultInvalidChars matches everything except letters, digits, underscores,
// dashes and dots.
const DefaultInvalidChars = `[^a-zA-Z0-9_\-\.]`

// DefaultReplacement substitutes each invalid character
const DefaultReplacement = "_"

// CharsetSanitizer replaces every match of an invalid-character pattern in the
// name, tag keys and tag values.
type CharsetSanitizer struct {
	invalid     *regexp.Regexp
	replacement string
}

// NewCharsetSanitizer creates a sanitizer replacing matches of pattern with
// replacement. The replacement is inserted literally.
func NewCharsetSanitizer(pattern, replacement string) (*CharsetSanitizer, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid charset pattern %q: %w", pattern, err)
	}
	return &CharsetSanitizer{invalid: re, replacement: replacement}, nil
}

// DefaultCharsetSanitizer replaces characters outside [a-zA-Z0-9_.-] with _
func DefaultCharsetSanitizer() *CharsetSanitizer {
	return &CharsetSanitizer{
		invalid:     regexp.MustCompile(DefaultInvalidChars),
		replacement: DefaultReplacement,
	}
}

// Clean returns s with every invalid character replaced
func (c *CharsetSanitizer) Clean(s string) string {
	return c.invalid.ReplaceAllLiteralString(s, c.replacement)
}

// Sanitize implements Sanitizer
func (c *CharsetSanitizer) Sanitize(b *Builder) (*Builder, error) {
	return rewrite(b, c.Clean, c.Clean, c.Clean)
}

var (
	invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)
	invalidLabelChars  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

type prometheusSanitizer struct{}

// PrometheusSanitizer rewrites the name into a valid Prometheus metric name
// and tag keys into valid label names, using the legacy character set. Tag
// values are left alone since Prometheus accepts any label value.
func PrometheusSanitizer() Sanitizer {
	return prometheusSanitizer{}
}

func (prometheusSanitizer) Sanitize(b *Builder) (*Builder, error) {
	return rewrite(b, promMetricName, promLabelName, keep)
}

func promMetricName(s string) string {
	if model.IsValidLegacyMetricName(s) {
		return s
	}
	return legacyName(invalidMetricChars.ReplaceAllLiteralString(s, "_"))
}

func promLabelName(s string) string {
	if model.LabelName(s).IsValidLegacy() {
		return s
	}
	return legacyName(invalidLabelChars.ReplaceAllLiteralString(s, "_"))
}

// legacyName guards against the two cases a character map cannot fix
func legacyName(s string) string {
	if s == "" {
		return "_"
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "_" + s
	}
	return s
}

func keep(s string) string {
	return s
}

type chainSanitizer []Sanitizer

// ChainSanitizers applies the sanitizers in order, stopping at the first
// error. nil entries are skipped. With nothing left it returns nil.
func ChainSanitizers(sanitizers ...Sanitizer) Sanitizer {
	chain := make(chainSanitizer, 0, len(sanitizers))
	for _, s := range sanitizers {
		if s != nil {
			chain = append(chain, s)
		}
	}
	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	}
	return chain
}

func (c chainSanitizer) Sanitize(b *Builder) (*Builder, error) {
	for _, s := range c {
		out, err := s.Sanitize(b)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, ErrNilBuilder
		}
		b = out
	}
	return b, nil
}

type loggingSanitizer struct {
	next   Sanitizer
	logger *zap.Logger
}

// LoggingSanitizer wraps s and logs every identity it rewrites at debug level
// and every failure at warn level. A nil s yields nil.
func LoggingSanitizer(s Sanitizer, logger *zap.Logger) Sanitizer {
	if s == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &loggingSanitizer{next: s, logger: logger}
}

func (l *loggingSanitizer) Sanitize(b *Builder) (*Builder, error) {
	name, tags := b.Name(), b.Tags()

	out, err := l.next.Sanitize(b)
	if err != nil {
		l.logger.Warn("Failed to sanitize monitor config",
			zap.String("name", name),
			zap.Error(err))
		return nil, err
	}

	if out != nil && (out.Name() != name || !out.Tags().Equal(tags)) {
		l.logger.Debug("Sanitized monitor config",
			zap.String("name", name),
			zap.String("sanitized_name", out.Name()),
			zap.Stringer("tags", tags),
			zap.Stringer("sanitized_tags", out.Tags()))
	}
	return out, nil
}

// rewrite builds a fresh builder with every identifier mapped. Keys that
// collide after mapping keep the value of the last one in canonical order.
func rewrite(b *Builder, name, key, value func(string) string) (*Builder, error) {
	out, err := NewBuilder(name(b.Name()))
	if err != nil {
		return nil, err
	}

	tags := make([]tag.Tag, 0, b.Tags().Len())
	for k, v := range b.Tags().All() {
		tags = append(tags, tag.New(key(k), value(v)))
	}

	return out.
		WithTags(tag.FromTags(tags...)).
		WithPublishingPolicy(b.PublishingPolicy()), nil
}
