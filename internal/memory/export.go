package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Export/import models persistence as an explicit, ordered list of
// key-value pairs. Keys are namespaced by kind:
//
//	entry:<seq>     JSON Entry, seq preserves chronological order
//	entity:<name>   JSON Entity
//	fact:<key>      JSON Fact
//	pref:<key>      raw preference value
//	stats           JSON Stats
//
// Export then Import into a fresh context is a lossless round trip.

// Pair is one exported key-value item.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Export snapshots the context as an ordered pair list: entries in
// chronological order, then entities, facts, and preferences each sorted by
// key, then stats.
func (c *Context) Export() ([]Pair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pairs := make([]Pair, 0, len(c.entries)+len(c.entities)+len(c.facts)+len(c.preferences)+1)

	for i, e := range c.entries {
		v, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("export entry %d: %w", i, err)
		}
		pairs = append(pairs, Pair{Key: fmt.Sprintf("entry:%06d", i), Value: string(v)})
	}

	for _, name := range sortedKeys(c.entities) {
		v, err := json.Marshal(c.entities[name])
		if err != nil {
			return nil, fmt.Errorf("export entity %q: %w", name, err)
		}
		pairs = append(pairs, Pair{Key: "entity:" + name, Value: string(v)})
	}

	for _, key := range sortedKeys(c.facts) {
		v, err := json.Marshal(c.facts[key])
		if err != nil {
			return nil, fmt.Errorf("export fact %q: %w", key, err)
		}
		pairs = append(pairs, Pair{Key: "fact:" + key, Value: string(v)})
	}

	for _, key := range sortedKeys(c.preferences) {
		pairs = append(pairs, Pair{Key: "pref:" + key, Value: c.preferences[key]})
	}

	stats := Stats{TotalQueries: c.totalQueries, LastUpdated: c.lastUpdated}
	if c.totalQueries > 0 {
		stats.AvgConfidence = c.confidenceSum / float64(c.totalQueries)
	}
	v, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("export stats: %w", err)
	}
	pairs = append(pairs, Pair{Key: "stats", Value: string(v)})

	return pairs, nil
}

// Import rebuilds the context from exported pairs, replacing all current
// state. Unknown key namespaces fail the import; the context is left
// cleared but otherwise unchanged on error.
func (c *Context) Import(pairs []Pair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.entities = make(map[string]Entity)
	c.facts = make(map[string]Fact)
	c.preferences = make(map[string]string)
	c.totalQueries = 0
	c.confidenceSum = 0

	for _, p := range pairs {
		kind, rest, _ := strings.Cut(p.Key, ":")
		switch kind {
		case "entry":
			var e Entry
			if err := json.Unmarshal([]byte(p.Value), &e); err != nil {
				return fmt.Errorf("import %s: %w", p.Key, err)
			}
			c.entries = append(c.entries, e)
		case "entity":
			var e Entity
			if err := json.Unmarshal([]byte(p.Value), &e); err != nil {
				return fmt.Errorf("import %s: %w", p.Key, err)
			}
			c.entities[rest] = e
		case "fact":
			var f Fact
			if err := json.Unmarshal([]byte(p.Value), &f); err != nil {
				return fmt.Errorf("import %s: %w", p.Key, err)
			}
			c.facts[rest] = f
		case "pref":
			c.preferences[rest] = p.Value
		case "stats":
			var s Stats
			if err := json.Unmarshal([]byte(p.Value), &s); err != nil {
				return fmt.Errorf("import %s: %w", p.Key, err)
			}
			c.totalQueries = s.TotalQueries
			c.confidenceSum = s.AvgConfidence * float64(s.TotalQueries)
			c.lastUpdated = s.LastUpdated
		default:
			return fmt.Errorf("import: unknown key %q", p.Key)
		}
	}

	if len(c.entries) > c.maxEntries {
		c.entries = c.entries[len(c.entries)-c.maxEntries:]
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
