// Package state holds the per-chat aggregate (uploaded logs, recovered keys,
// running attacks) and persists it across restarts.
package state

import (
	"sort"

	"github.com/silver2dream/hardnested-bot/internal/keys"
)

// ChatState is everything the bot remembers about one chat.
type ChatState struct {
	// Logs maps identifier to its set of distinct log lines.
	Logs map[string]map[string]struct{}
	// LogOrder lists identifiers in the order they were first uploaded.
	LogOrder []string
	// Keys maps identifier to the keys recovered for it so far.
	Keys map[string]keys.Set
	// Running counts attacks in progress per identifier. A forced rerun
	// adds to the count of one already running.
	Running map[string]int
}

// New returns an empty ChatState.
func New() *ChatState {
	return &ChatState{
		Logs:    make(map[string]map[string]struct{}),
		Keys:    make(map[string]keys.Set),
		Running: make(map[string]int),
	}
}

// Reset clears the state in place.
func (c *ChatState) Reset() {
	*c = *New()
}

// AddLogs stores lines for an identifier and returns how many were new.
func (c *ChatState) AddLogs(id string, lines []string) int {
	set, ok := c.Logs[id]
	if !ok {
		set = make(map[string]struct{})
		c.Logs[id] = set
		c.LogOrder = append(c.LogOrder, id)
	}
	added := 0
	for _, line := range lines {
		if _, dup := set[line]; dup {
			continue
		}
		set[line] = struct{}{}
		added++
	}
	return added
}

// LinesFor returns the lines stored for id, sorted lexicographically.
func (c *ChatState) LinesFor(id string) []string {
	set := c.Logs[id]
	out := make([]string, 0, len(set))
	for line := range set {
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}

// HasLogs reports whether any line is stored for id.
func (c *ChatState) HasLogs(id string) bool {
	return len(c.Logs[id]) > 0
}

// CachedKeys returns the keys recovered for id. The result may be empty.
func (c *ChatState) CachedKeys(id string) keys.Set {
	return c.Keys[id]
}

// MergeKeys adds found to the keys cached for id and returns the new ones.
func (c *ChatState) MergeKeys(id string, found keys.Set) keys.Set {
	if found.Len() == 0 {
		return keys.NewSet()
	}
	set, ok := c.Keys[id]
	if !ok {
		set = keys.NewSet()
		c.Keys[id] = set
	}
	return set.Merge(found)
}

// IsRunning reports whether an attack on id is in progress.
func (c *ChatState) IsRunning(id string) bool {
	return c.Running[id] > 0
}

// MarkRunning records one more attack on id.
func (c *ChatState) MarkRunning(id string) {
	c.Running[id]++
}

// Release ends one attack on id. id stops running when its last attack
// ends.
func (c *ChatState) Release(id string) {
	if c.Running[id] <= 1 {
		delete(c.Running, id)
		return
	}
	c.Running[id]--
}

// KeyedIdentifiers returns identifiers that have cached keys, in upload
// order first and any others sorted after them.
func (c *ChatState) KeyedIdentifiers() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, id := range c.LogOrder {
		if c.Keys[id].Len() > 0 {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	var rest []string
	for id, set := range c.Keys {
		if _, ok := seen[id]; !ok && set.Len() > 0 {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Clone returns a deep copy.
func (c *ChatState) Clone() *ChatState {
	out := New()
	out.LogOrder = append([]string(nil), c.LogOrder...)
	for id, set := range c.Logs {
		cp := make(map[string]struct{}, len(set))
		for line := range set {
			cp[line] = struct{}{}
		}
		out.Logs[id] = cp
	}
	for id, set := range c.Keys {
		cp := keys.NewSet()
		cp.Merge(set)
		out.Keys[id] = cp
	}
	for id, n := range c.Running {
		out.Running[id] = n
	}
	return out
}
