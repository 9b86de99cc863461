package monitor

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nikiz24/monitor/v2/tag"
)

// useSanitizer installs s for the duration of the test
func useSanitizer(t *testing.T, s Sanitizer) {
	t.Helper()
	prev := SetConfigSanitizer(s)
	t.Cleanup(func() { SetConfigSanitizer(prev) })
}

func dirtyConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := MustNewBuilder("foo bar%").WithTag("some$tag", "some#value").Build()
	require.NoError(t, err)
	return cfg
}

func TestSanitizedConfigs(t *testing.T) {
	useSanitizer(t, nil)

	m1 := dirtyConfig(t)
	assert.Equal(t, "foo bar%", m1.Name())
	assert.True(t, m1.Tags().Equal(tag.Of("some$tag", "some#value")))

	SetConfigSanitizer(DefaultCharsetSanitizer())
	m2 := dirtyConfig(t)
	assert.Equal(t, "foo_bar_", m2.Name())
	assert.True(t, m2.Tags().Equal(tag.Of("some_tag", "some_value")))

	SetConfigSanitizer(nil)
	m3 := dirtyConfig(t)
	assert.Equal(t, "foo bar%", m3.Name())
	assert.Equal(t, "foo_bar_", m2.Name(), "built configs must not change")
}

func TestSetConfigSanitizerReturnsPrevious(t *testing.T) {
	useSanitizer(t, nil)

	s := DefaultCharsetSanitizer()
	assert.Nil(t, SetConfigSanitizer(s))
	assert.Same(t, s, ConfigSanitizer())
	assert.Same(t, s, SetConfigSanitizer(nil))
	assert.Nil(t, ConfigSanitizer())
}

func TestSanitizerPreservesPolicy(t *testing.T) {
	cfg, err := MustNewBuilder("a b").
		WithPublishingPolicy("custom").
		BuildWith(DefaultCharsetSanitizer())
	require.NoError(t, err)

	assert.Equal(t, "a_b", cfg.Name())
	assert.Equal(t, PublishingPolicy("custom"), cfg.PublishingPolicy())
}

func TestBuildWithOverridesGlobal(t *testing.T) {
	useSanitizer(t, DefaultCharsetSanitizer())

	cfg, err := MustNewBuilder("foo bar%").BuildWith(nil)
	require.NoError(t, err)
	assert.Equal(t, "foo bar%", cfg.Name())
}

func TestSanitizerErrors(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		sanitizer Sanitizer
		wantErr   error
	}{
		{
			name: "error propagates",
			sanitizer: SanitizerFunc(func(*Builder) (*Builder, error) {
				return nil, errBoom
			}),
			wantErr: errBoom,
		},
		{
			name: "nil builder",
			sanitizer: SanitizerFunc(func(*Builder) (*Builder, error) {
				return nil, nil
			}),
			wantErr: ErrNilBuilder,
		},
		{
			name:      "name sanitized away",
			sanitizer: mustCharset(t, `.`, ""),
			wantErr:   ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := MustNewBuilder("a").BuildWith(tt.sanitizer)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, cfg.IsZero())
		})
	}
}

func TestNewCharsetSanitizerInvalidPattern(t *testing.T) {
	_, err := NewCharsetSanitizer("[", "_")
	assert.Error(t, err)
}

func TestCharsetSanitizerClean(t *testing.T) {
	s := mustCharset(t, `[^a-z]`, "-")
	assert.Equal(t, "a-b-c", s.Clean("a1b$c"))
	assert.Equal(t, "$1", mustCharset(t, `x`, "$1").Clean("x"), "replacement is literal")
}

func TestPrometheusSanitizer(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		tags     tag.List
		wantName string
		wantTags tag.List
	}{
		{
			name:     "valid identifiers untouched",
			in:       "http:requests_total",
			tags:     tag.Of("method", "GET /x"),
			wantName: "http:requests_total",
			wantTags: tag.Of("method", "GET /x"),
		},
		{
			name:     "invalid characters",
			in:       "foo bar%",
			tags:     tag.Of("some$tag", "some#value"),
			wantName: "foo_bar_",
			wantTags: tag.Of("some_tag", "some#value"),
		},
		{
			name:     "dots and colons in keys",
			in:       "http.requests",
			tags:     tag.Of("a:b", "1", "c.d", "2"),
			wantName: "http_requests",
			wantTags: tag.Of("a_b", "1", "c_d", "2"),
		},
		{
			name:     "leading digit",
			in:       "1xx",
			tags:     tag.Of("2k", "v"),
			wantName: "_1xx",
			wantTags: tag.Of("_2k", "v"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := MustNewBuilder(tt.in).WithTags(tt.tags).BuildWith(PrometheusSanitizer())
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, cfg.Name())
			assert.True(t, cfg.Tags().Equal(tt.wantTags), "got %s", cfg.Tags())
			assert.True(t, model.IsValidLegacyMetricName(cfg.Name()))
			for k := range cfg.Tags().All() {
				assert.True(t, model.LabelName(k).IsValidLegacy(), k)
			}
		})
	}
}

func TestChainSanitizers(t *testing.T) {
	assert.Nil(t, ChainSanitizers())
	assert.Nil(t, ChainSanitizers(nil, nil))

	single := PrometheusSanitizer()
	assert.Equal(t, single, ChainSanitizers(nil, single))

	stage := SanitizerFunc(func(b *Builder) (*Builder, error) {
		return b.WithTag("stage", "2"), nil
	})
	chain := ChainSanitizers(DefaultCharsetSanitizer(), stage, PrometheusSanitizer())

	cfg, err := MustNewBuilder("a-b c").WithTag("k", "v").BuildWith(chain)
	require.NoError(t, err)
	assert.Equal(t, "a_b_c", cfg.Name())
	assert.True(t, cfg.Tags().Equal(tag.Of("k", "v", "stage", "2")))

	failing := ChainSanitizers(single, SanitizerFunc(func(*Builder) (*Builder, error) {
		return nil, nil
	}))
	_, err = MustNewBuilder("a").BuildWith(failing)
	assert.ErrorIs(t, err, ErrNilBuilder)
}

func TestLoggingSanitizer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := LoggingSanitizer(DefaultCharsetSanitizer(), zap.New(core))

	_, err := MustNewBuilder("clean").BuildWith(s)
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	_, err = MustNewBuilder("foo bar%").BuildWith(s)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "foo_bar_", entry.ContextMap()["sanitized_name"])

	failing := LoggingSanitizer(SanitizerFunc(func(*Builder) (*Builder, error) {
		return nil, errors.New("boom")
	}), zap.New(core))
	_, err = MustNewBuilder("x").BuildWith(failing)
	assert.Error(t, err)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestLoggingSanitizerNil(t *testing.T) {
	s := LoggingSanitizer(nil, nil)
	assert.Nil(t, s)

	var cfg Config
	require.NotPanics(t, func() {
		var err error
		cfg, err = MustNewBuilder("a b").BuildWith(s)
		require.NoError(t, err)
	})
	assert.Equal(t, "a b", cfg.Name())
}

func TestSetConfigSanitizerLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	useSanitizer(t, nil)

	SetConfigSanitizer(PrometheusSanitizer())
	SetConfigSanitizer(nil)

	msgs := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"config sanitizer installed", "config sanitizer removed"}, msgs)
	assert.Equal(t, "monitor.prometheusSanitizer", logs.All()[0].ContextMap()["sanitizer"])
}

func TestConcurrentBuildsSeeOneSanitizer(t *testing.T) {
	useSanitizer(t, nil)

	var wg sync.WaitGroup
	results := make(chan string, 400)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg, err := MustNewBuilder("foo bar").WithTag("a b", "c d").Build()
				if err != nil {
					results <- err.Error()
					continue
				}
				results <- cfg.String()
			}
		}()
	}

	s := DefaultCharsetSanitizer()
	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			SetConfigSanitizer(s)
		} else {
			SetConfigSanitizer(nil)
		}
	}

	wg.Wait()
	close(results)

	raw := `MonitorConfig{name="foo bar", tags={"a b"="c d"}}`
	clean := "MonitorConfig{name=foo_bar, tags={a_b=c_d}}"
	for r := range results {
		assert.Contains(t, []string{raw, clean}, r)
	}
}

func mustCharset(t *testing.T, pattern, replacement string) *CharsetSanitizer {
	t.Helper()
	s, err := NewCharsetSanitizer(pattern, replacement)
	require.NoError(t, err)
	return s
}
