// Package keys extracts recovered sector keys from hardnested attack output.
package keys

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// keyPattern matches the single result line the attack tool prints per key.
var keyPattern = regexp.MustCompile(
	`Key found for UID: ([0-9a-fA-F]+), Sector: (\d+), Key type: ([AB]): ([0-9a-fA-F]+)`,
)

// Match is one structured result line.
type Match struct {
	UID     string
	Sector  int
	KeyType string
	Key     string
}

// Matches returns every result line found in text, in order of appearance.
func Matches(text string) []Match {
	found := keyPattern.FindAllStringSubmatch(text, -1)
	if len(found) == 0 {
		return nil
	}

	out := make([]Match, 0, len(found))
	for _, m := range found {
		sector, err := strconv.Atoi(m[2])
		if err != nil {
			sector = -1
		}
		out = append(out, Match{
			UID:     strings.ToLower(m[1]),
			Sector:  sector,
			KeyType: m[3],
			Key:     strings.ToLower(m[4]),
		})
	}
	return out
}

// Extract returns the set of keys found in text.
func Extract(text string) Set {
	s := NewSet()
	for _, m := range keyPattern.FindAllStringSubmatch(text, -1) {
		s.Add(m[4])
	}
	return s
}

// Set is a set of hex keys stored lower case.
type Set map[string]struct{}

// NewSet creates a set holding the given keys.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts a key. Reports whether it was new.
func (s Set) Add(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// Has reports whether key is in the set, ignoring case.
func (s Set) Has(key string) bool {
	_, ok := s[strings.ToLower(key)]
	return ok
}

// Merge adds every key of other and returns the keys that were new.
func (s Set) Merge(other Set) Set {
	added := NewSet()
	for k := range other {
		if s.Add(k) {
			added.Add(k)
		}
	}
	return added
}

// Len returns the number of keys.
func (s Set) Len() int {
	return len(s)
}

// Sorted returns the keys in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Upper returns the sorted keys in display form.
func (s Set) Upper() []string {
	out := s.Sorted()
	for i, k := range out {
		out[i] = strings.ToUpper(k)
	}
	return out
}

// Collector gathers keys from transcript chunks as they are frozen.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	keys    Set
	matches []Match
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{keys: NewSet()}
}

// Observe scans one chunk of text and returns the keys it contributed
// for the first time.
func (c *Collector) Observe(chunk string) Set {
	found := Matches(chunk)

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := NewSet()
	for _, m := range found {
		if c.keys.Add(m.Key) {
			fresh.Add(m.Key)
			c.matches = append(c.matches, m)
		}
	}
	return fresh
}

// Keys returns a copy of everything collected so far.
func (c *Collector) Keys() Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := NewSet()
	out.Merge(c.keys)
	return out
}

// Matches returns the first match seen for every collected key.
func (c *Collector) Matches() []Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Match, len(c.matches))
	copy(out, c.matches)
	return out
}
