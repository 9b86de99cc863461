// Package monitor defines the identity under which a metric is published:
// a name, an order-independent set of tags and a publishing policy.
//
// Identities are immutable and are created through a Builder:
//
//	cfg, err := monitor.MustNewBuilder("requests_total").
//	  WithTag("cluster", "foo").
//	  WithTag("asg", "foo-v000").
//	  Build()
//
// Two configs are equal when their names and tag sets match, regardless of
// the order in which the tags were added.
//
// A process-wide Sanitizer can be installed with SetConfigSanitizer to
// rewrite identifiers to a safe character set on every Build:
//
//	prev := monitor.SetConfigSanitizer(monitor.DefaultCharsetSanitizer())
//	defer monitor.SetConfigSanitizer(prev)
//
// BuildWith applies an explicit sanitizer instead of the process-wide one.
// Without any sanitizer identifiers are kept verbatim.
package monitor
