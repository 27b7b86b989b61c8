package state

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silver2dream/hardnested-bot/internal/keys"
)

// CurrentVersion is the record layout written by this build.
//
//	0: logs and keys only, no version field
//	1: adds running
//	2: adds log_order
const CurrentVersion = 2

// record is the on-disk form of a ChatState.
type record struct {
	Version  int                 `yaml:"version"`
	ChatID   int64               `yaml:"chat_id,omitempty"`
	SavedAt  time.Time           `yaml:"saved_at,omitempty"`
	LogOrder []string            `yaml:"log_order,omitempty"`
	Logs     map[string][]string `yaml:"logs"`
	Keys     map[string][]string `yaml:"keys"`
	Running  []string            `yaml:"running"`
}

func encode(chatID int64, c *ChatState) ([]byte, error) {
	rec := record{
		Version:  CurrentVersion,
		ChatID:   chatID,
		SavedAt:  time.Now().UTC(),
		LogOrder: c.LogOrder,
		Logs:     make(map[string][]string, len(c.Logs)),
		Keys:     make(map[string][]string, len(c.Keys)),
		Running:  make([]string, 0, len(c.Running)),
	}
	for id := range c.Logs {
		rec.Logs[id] = c.LinesFor(id)
	}
	for id, set := range c.Keys {
		if set.Len() > 0 {
			rec.Keys[id] = set.Sorted()
		}
	}
	for id := range c.Running {
		rec.Running = append(rec.Running, id)
	}
	sort.Strings(rec.Running)

	return yaml.Marshal(&rec)
}

// decode parses a record of any known version into a ChatState.
func decode(data []byte) (*ChatState, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse chat state: %w", err)
	}
	if rec.Version > CurrentVersion {
		return nil, fmt.Errorf("chat state version %d is newer than supported version %d", rec.Version, CurrentVersion)
	}
	upgrade(&rec)

	c := New()
	for _, id := range rec.LogOrder {
		if lines, ok := rec.Logs[id]; ok {
			c.AddLogs(id, lines)
		}
	}
	for id, set := range rec.Keys {
		c.MergeKeys(id, keys.NewSet(set...))
	}
	for _, id := range rec.Running {
		c.MarkRunning(id)
	}
	return c, nil
}

// upgrade rewrites older layouts in place to CurrentVersion.
func upgrade(rec *record) {
	if rec.Version < 1 {
		rec.Running = nil
		rec.Version = 1
	}
	if rec.Version < 2 {
		// original upload order is lost; sort for a stable button order
		rec.LogOrder = nil
		rec.Version = 2
	}

	listed := make(map[string]struct{}, len(rec.LogOrder))
	for _, id := range rec.LogOrder {
		listed[id] = struct{}{}
	}
	var missing []string
	for id := range rec.Logs {
		if _, ok := listed[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	rec.LogOrder = append(rec.LogOrder, missing...)
}
