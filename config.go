package monitor

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/eryajf/promwrite"

	"github.com/nikiz24/monitor/v2/tag"
)

var (
	// ErrInvalidName is returned when a monitor name is empty
	ErrInvalidName = errors.New("monitor name cannot be empty")

	// ErrNilBuilder is returned when a sanitizer hands back no builder
	ErrNilBuilder = errors.New("sanitizer returned a nil builder")
)

// PublishingPolicy controls how a monitor is exported. Its meaning belongs to
// the publisher; the identity only carries it along.
type PublishingPolicy string

// DefaultPublishingPolicy is used when no policy is set
const DefaultPublishingPolicy PublishingPolicy = "default"

// nameLabel is the Prometheus label holding the metric name
const nameLabel = "__name__"

// Config is the immutable identity of a monitor: a name and a set of tags.
// Two configs are equal when name and tags match; the publishing policy is
// carried but not part of the identity.
//
// Configs are created by a Builder and are safe for concurrent use.
type Config struct {
	name   string
	tags   tag.List
	policy PublishingPolicy

	hash uint64
	str  string
}

func newConfig(name string, tags tag.List, policy PublishingPolicy) Config {
	d := xxhash.New()
	tag.HashString(d, name)
	tags.WriteHash(d)

	return Config{
		name:   name,
		tags:   tags,
		policy: policy,
		hash:   d.Sum64(),
		str:    fmt.Sprintf("MonitorConfig{name=%s, tags=%s}", tag.Quote(name), tags),
	}
}

// Name returns the monitor name
func (c Config) Name() string {
	return c.name
}

// Tags returns the monitor tags
func (c Config) Tags() tag.List {
	return c.tags
}

// PublishingPolicy returns the publishing policy
func (c Config) PublishingPolicy() PublishingPolicy {
	return c.policy
}

// IsZero reports whether c was not produced by a Builder
func (c Config) IsZero() bool {
	return c.name == ""
}

// Equal reports whether both configs identify the same monitor
func (c Config) Equal(other Config) bool {
	return c.hash == other.hash && c.name == other.name && c.tags.Equal(other.tags)
}

// Hash returns the hash of name and tags, consistent with Equal
func (c Config) Hash() uint64 {
	return c.hash
}

// String renders name and tags. Distinct identities render differently, so
// the result can also be used as a map key.
func (c Config) String() string {
	return c.str
}

// Labels returns the remote write label set identifying the monitor: the name
// under __name__ followed by the tags in canonical order. A tag keyed
// __name__ is dropped.
func (c Config) Labels() []promwrite.Label {
	labels := make([]promwrite.Label, 0, c.tags.Len()+1)
	labels = append(labels, promwrite.Label{Name: nameLabel, Value: c.name})
	for k, v := range c.tags.All() {
		if k == nameLabel {
			continue
		}
		labels = append(labels, promwrite.Label{Name: k, Value: v})
	}
	return labels
}

// Builder returns a builder seeded with a copy of c
func (c Config) Builder() *Builder {
	return BuilderFrom(c)
}

// Builder accumulates the parts of a Config. A Builder is owned by a single
// goroutine; setters modify it in place and return it for chaining.
type Builder struct {
	name   string
	tags   tag.List
	policy PublishingPolicy
}

// NewBuilder starts a config with the given name, no tags and the default
// publishing policy.
func NewBuilder(name string) (*Builder, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Builder{
		name:   name,
		policy: DefaultPublishingPolicy,
	}, nil
}

// MustNewBuilder is like NewBuilder but panics on an empty name
func MustNewBuilder(name string) *Builder {
	b, err := NewBuilder(name)
	if err != nil {
		panic(err)
	}
	return b
}

// BuilderFrom starts a builder from a snapshot of an existing config
func BuilderFrom(c Config) *Builder {
	return &Builder{
		name:   c.name,
		tags:   c.tags,
		policy: c.policy,
	}
}

// WithTags replaces the tag set
func (b *Builder) WithTags(tags tag.List) *Builder {
	b.tags = tags
	return b
}

// WithTag adds a tag, replacing any previous value for key
func (b *Builder) WithTag(key, value string) *Builder {
	b.tags = b.tags.With(key, value)
	return b
}

// WithPublishingPolicy sets the publishing policy
func (b *Builder) WithPublishingPolicy(policy PublishingPolicy) *Builder {
	b.policy = policy
	return b
}

// Name returns the current name
func (b *Builder) Name() string {
	return b.name
}

// Tags returns the current tags
func (b *Builder) Tags() tag.List {
	return b.tags
}

// PublishingPolicy returns the current publishing policy
func (b *Builder) PublishingPolicy() PublishingPolicy {
	return b.policy
}

// Build passes the builder through the process-wide sanitizer, if one is
// installed, and freezes the result.
func (b *Builder) Build() (Config, error) {
	return b.BuildWith(ConfigSanitizer())
}

// BuildWith is like Build but uses s instead of the process-wide sanitizer.
// A nil s keeps the identifiers verbatim.
func (b *Builder) BuildWith(s Sanitizer) (Config, error) {
	src := b
	if s != nil {
		out, err := s.Sanitize(b)
		if err != nil {
			return Config{}, fmt.Errorf("failed to sanitize monitor %q: %w", b.name, err)
		}
		if out == nil {
			return Config{}, ErrNilBuilder
		}
		src = out
	}

	if src.name == "" {
		return Config{}, ErrInvalidName
	}
	return newConfig(src.name, src.tags, src.policy), nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() Config {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
