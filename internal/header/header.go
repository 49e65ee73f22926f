// Package header provides a case-insensitive header map that keeps insertion order.
package header

import (
	"net/http"
	"slices"
	"strings"
)

type entry struct {
	key    string // as first inserted
	values []string
}

// Map is a case-insensitive, insertion-ordered multi-valued header map.
// The zero value is ready to use.
type Map struct {
	entries []entry
}

// FromHTTP copies h into a new Map. Keys are added in sorted order since
// http.Header carries no ordering of its own.
func FromHTTP(h http.Header) *Map {
	m := &Map{}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			m.Add(k, v)
		}
	}
	return m
}

func (m *Map) find(key string) int {
	for i := range m.entries {
		if strings.EqualFold(m.entries[i].key, key) {
			return i
		}
	}
	return -1
}

// Get returns the first value for key, or "".
func (m *Map) Get(key string) string {
	if i := m.find(key); i >= 0 && len(m.entries[i].values) > 0 {
		return m.entries[i].values[0]
	}
	return ""
}

// Values returns all values for key.
func (m *Map) Values(key string) []string {
	if i := m.find(key); i >= 0 {
		return m.entries[i].values
	}
	return nil
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	return m.find(key) >= 0
}

// Key returns the key spelling under which key was first inserted, or "".
func (m *Map) Key(key string) string {
	if i := m.find(key); i >= 0 {
		return m.entries[i].key
	}
	return ""
}

// Set replaces all values for key. An existing entry keeps its position and spelling.
func (m *Map) Set(key, value string) {
	if i := m.find(key); i >= 0 {
		m.entries[i].values = []string{value}
		return
	}
	m.entries = append(m.entries, entry{key: key, values: []string{value}})
}

// Add appends value to key.
func (m *Map) Add(key, value string) {
	if i := m.find(key); i >= 0 {
		m.entries[i].values = append(m.entries[i].values, value)
		return
	}
	m.entries = append(m.entries, entry{key: key, values: []string{value}})
}

// Del removes key.
func (m *Map) Del(key string) {
	if i := m.find(key); i >= 0 {
		m.entries = slices.Delete(m.entries, i, i+1)
	}
}

// Len returns the number of distinct keys.
func (m *Map) Len() int {
	return len(m.entries)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// HTTP converts the map to an http.Header with canonical keys.
func (m *Map) HTTP() http.Header {
	h := make(http.Header, len(m.entries))
	for _, e := range m.entries {
		for _, v := range e.values {
			h.Add(e.key, v)
		}
	}
	return h
}

// HopByHop lists headers that apply to a single connection and must not be
// forwarded by proxies.
var HopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// DelHopByHop removes the HopByHop headers and any header named in Connection.
func (m *Map) DelHopByHop() {
	for _, v := range m.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				m.Del(name)
			}
		}
	}
	for _, h := range HopByHop {
		m.Del(h)
	}
}
