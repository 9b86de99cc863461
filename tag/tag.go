// Package tag provides the immutable key/value tag set attached to a monitor
// identity.
//
// A List is always stored sorted by key with one value per key, so equality,
// hashing, iteration and the string form are order independent:
//
//	a := tag.Of("cluster", "foo", "asg", "foo-v000")
//	b := tag.Of("asg", "foo-v000", "cluster", "foo")
//	a.Equal(b) // true
package tag

import (
	"encoding/binary"
	"iter"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Tag is a single key/value pair
type Tag struct {
	Key   string
	Value string
}

// New creates a tag
func New(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// String renders the tag as key=value, quoting either side when needed
func (t Tag) String() string {
	return Quote(t.Key) + "=" + Quote(t.Value)
}

// List is an immutable set of tags kept in canonical (sorted by key) order.
// The zero value is the empty list.
type List struct {
	tags []Tag
}

// Empty is the list without tags
var Empty = List{}

// Of builds a list from alternating key/value strings.
// A trailing key without a value is ignored; duplicate keys keep the last value.
func Of(pairs ...string) List {
	tags := make([]Tag, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		tags = append(tags, Tag{Key: pairs[i], Value: pairs[i+1]})
	}
	return FromTags(tags...)
}

// FromMap builds a list from a map
func FromMap(m map[string]string) List {
	if len(m) == 0 {
		return Empty
	}
	tags := make([]Tag, 0, len(m))
	for k, v := range m {
		tags = append(tags, Tag{Key: k, Value: v})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
	return List{tags: tags}
}

// FromTags builds a list from tags. Duplicate keys keep the last value.
func FromTags(tags ...Tag) List {
	if len(tags) == 0 {
		return Empty
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	// Stable sort keeps input order among equal keys, so the last one wins below.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	n := 0
	for i := range out {
		if n > 0 && out[n-1].Key == out[i].Key {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return List{tags: out[:n]}
}

// With returns a copy of the list with key set to value.
func (l List) With(key, value string) List {
	i, found := l.search(key)
	if found && l.tags[i].Value == value {
		return l
	}

	var out []Tag
	if found {
		out = slices.Clone(l.tags)
		out[i].Value = value
	} else {
		out = make([]Tag, 0, len(l.tags)+1)
		out = append(out, l.tags[:i]...)
		out = append(out, Tag{Key: key, Value: value})
		out = append(out, l.tags[i:]...)
	}
	return List{tags: out}
}

// WithList merges other into a copy of the list. Tags from other win on conflicts.
func (l List) WithList(other List) List {
	if other.IsEmpty() {
		return l
	}
	if l.IsEmpty() {
		return other
	}
	merged := make([]Tag, 0, len(l.tags)+len(other.tags))
	merged = append(merged, l.tags...)
	merged = append(merged, other.tags...)
	return FromTags(merged...)
}

// Get returns the value stored for key
func (l List) Get(key string) (string, bool) {
	i, found := l.search(key)
	if !found {
		return "", false
	}
	return l.tags[i].Value, true
}

// Len returns the number of tags
func (l List) Len() int {
	return len(l.tags)
}

// IsEmpty reports whether the list has no tags
func (l List) IsEmpty() bool {
	return len(l.tags) == 0
}

// All iterates the tags in canonical order
func (l List) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, t := range l.tags {
			if !yield(t.Key, t.Value) {
				return
			}
		}
	}
}

// Tags returns a copy of the tags in canonical order
func (l List) Tags() []Tag {
	return slices.Clone(l.tags)
}

// Map returns the tags as a new map
func (l List) Map() map[string]string {
	m := make(map[string]string, len(l.tags))
	for _, t := range l.tags {
		m[t.Key] = t.Value
	}
	return m
}

// Equal reports whether both lists hold the same tags
func (l List) Equal(other List) bool {
	return slices.Equal(l.tags, other.tags)
}

// Hash returns a hash of the canonical form. Equal lists hash equally.
func (l List) Hash() uint64 {
	d := xxhash.New()
	l.WriteHash(d)
	return d.Sum64()
}

// WriteHash feeds the canonical form into d
func (l List) WriteHash(d *xxhash.Digest) {
	for _, t := range l.tags {
		HashString(d, t.Key)
		HashString(d, t.Value)
	}
}

// HashString feeds s into d prefixed with its length, so adjacent fields
// cannot be re-split into the same byte stream.
func HashString(d *xxhash.Digest, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(s)
}

// String renders the list as {k1=v1, k2=v2}. Keys and values holding
// separators are quoted, so distinct lists never render alike.
func (l List) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, t := range l.tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(Quote(t.Key))
		sb.WriteByte('=')
		sb.WriteString(Quote(t.Value))
	}
	sb.WriteByte('}')
	return sb.String()
}

// specialChars force quoting in rendered identifiers
const specialChars = "=,{} \"\\"

// Quote returns s unchanged unless it is empty or holds a separator, a quote
// or a non-printable rune, in which case it is rendered with strconv.Quote.
func Quote(s string) string {
	if s == "" || strings.ContainsAny(s, specialChars) || !isPrintable(s) {
		return strconv.Quote(s)
	}
	return s
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !strconv.IsPrint(r) {
			return false
		}
	}
	return true
}

func (l List) search(key string) (int, bool) {
	i := sort.Search(len(l.tags), func(i int) bool { return l.tags[i].Key >= key })
	return i, i < len(l.tags) && l.tags[i].Key == key
}
