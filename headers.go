package fetch

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// headerPair is one inserted (key, value) entry.
type headerPair struct {
	key   string // canonical form
	value string
}

// Headers is an ordered multi-map with case-insensitive lookup that
// preserves insertion order for serialization, per spec.md §3's Request
// header invariant.
type Headers struct {
	pairs []headerPair
}

// NewHeaders builds a Headers from a plain map, inserting in sorted key
// order for determinism (Go map iteration order isn't stable).
func NewHeaders(m map[string]string) Headers {
	h := Headers{}
	for _, k := range sortedKeys(m) {
		h = h.add(k, m[k])
	}
	return h
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewHeadersMulti builds a Headers from a multi-value map, such as the
// Recorder's exportToJson wire format (spec.md §4.9), inserting in sorted
// key order for determinism and preserving each key's value order.
func NewHeadersMulti(m map[string][]string) Headers {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := Headers{}
	for _, k := range keys {
		for _, v := range m[k] {
			h = h.add(k, v)
		}
	}
	return h
}

func canon(key string) string { return textproto.CanonicalMIMEHeaderKey(key) }

// add appends (key, value), returning a new Headers (copy-on-write).
func (h Headers) add(key, value string) Headers {
	out := Headers{pairs: append(append([]headerPair(nil), h.pairs...), headerPair{canon(key), value})}
	return out
}

// set replaces all existing values for key with value, returning a new Headers.
func (h Headers) set(key, value string) Headers {
	ck := canon(key)
	out := make([]headerPair, 0, len(h.pairs)+1)
	replaced := false
	for _, p := range h.pairs {
		if p.key == ck {
			if !replaced {
				out = append(out, headerPair{ck, value})
				replaced = true
			}
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, headerPair{ck, value})
	}
	return Headers{pairs: out}
}

// Get returns the first value for key, case-insensitively.
func (h Headers) Get(key string) string {
	ck := canon(key)
	for _, p := range h.pairs {
		if p.key == ck {
			return p.value
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (h Headers) Values(key string) []string {
	ck := canon(key)
	var out []string
	for _, p := range h.pairs {
		if p.key == ck {
			out = append(out, p.value)
		}
	}
	return out
}

// Has reports whether key has at least one value.
func (h Headers) Has(key string) bool {
	ck := canon(key)
	for _, p := range h.pairs {
		if p.key == ck {
			return true
		}
	}
	return false
}

// Keys returns the distinct canonical keys in first-seen order.
func (h Headers) Keys() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range h.pairs {
		if !seen[p.key] {
			seen[p.key] = true
			out = append(out, p.key)
		}
	}
	return out
}

// ToHTTPHeader renders h as a net/http.Header, preserving multi-values.
func (h Headers) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.pairs))
	for _, p := range h.pairs {
		out[p.key] = append(out[p.key], p.value)
	}
	return out
}

// JoinedCommaValues collapses multi-value headers by joining with ", ",
// used by the Cache Key Generator's vary-header extraction (spec.md §4.2).
func (h Headers) JoinedCommaValues(key string) string {
	return strings.Join(h.Values(key), ", ")
}

