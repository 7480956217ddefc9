// Package memory holds per-conversation short-term state: recent
// query/answer pairs, extracted entities and facts, user preferences, and
// aggregate statistics.
//
// State is created lazily through a Registry and never expires on its own;
// eviction and clearing are explicit operations owned by the caller.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ragent-ai/ragent/internal/llm"
)

// DefaultMaxEntries caps remembered query/answer pairs per conversation.
const DefaultMaxEntries = 50

// Entry is one remembered query/answer exchange.
type Entry struct {
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Entity is a named thing mentioned during the conversation.
type Entity struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Mentions int       `json:"mentions"`
	LastSeen time.Time `json:"lastSeen"`
}

// Fact is a keyed statement remembered for the conversation.
type Fact struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates conversation activity.
type Stats struct {
	TotalQueries  int       `json:"totalQueries"`
	AvgConfidence float64   `json:"avgConfidence"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Context is the mutable memory of one conversation.
//
// All methods are safe for concurrent use, but callers that need
// read-modify-write consistency across calls should serialize access per
// conversation id.
type Context struct {
	mu sync.Mutex

	conversationID string
	maxEntries     int
	now            func() time.Time

	entries       []Entry
	entities      map[string]Entity
	facts         map[string]Fact
	preferences   map[string]string
	totalQueries  int
	confidenceSum float64
	lastUpdated   time.Time
}

// NewContext creates an empty conversation context. maxEntries <= 0 uses
// DefaultMaxEntries.
func NewContext(conversationID string, maxEntries int) *Context {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Context{
		conversationID: conversationID,
		maxEntries:     maxEntries,
		now:            time.Now,
		entities:       make(map[string]Entity),
		facts:          make(map[string]Fact),
		preferences:    make(map[string]string),
	}
}

// ConversationID reports which conversation this context belongs to.
func (c *Context) ConversationID() string { return c.conversationID }

// AddMemory records a query/answer exchange, pruning the oldest entries
// beyond the cap, and runs heuristic extraction on the query text.
func (c *Context) AddMemory(query, answer string, confidence float64) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, Entry{
		Query:      query,
		Answer:     answer,
		Confidence: confidence,
		Timestamp:  now,
	})
	if len(c.entries) > c.maxEntries {
		c.entries = c.entries[len(c.entries)-c.maxEntries:]
	}

	c.totalQueries++
	c.confidenceSum += confidence
	c.lastUpdated = now

	for _, name := range ExtractEntities(query) {
		c.touchEntity(name, now)
	}
	for key, value := range ExtractPreferences(query) {
		c.preferences[key] = value
	}
}

// AddEntity records or refreshes a named entity.
func (c *Context) AddEntity(name, entityType string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.touchEntity(name, now)
	if entityType != "" {
		e.Type = entityType
		c.entities[name] = e
	}
	c.lastUpdated = now
}

// touchEntity bumps the mention count. Caller holds the lock.
func (c *Context) touchEntity(name string, now time.Time) Entity {
	e, ok := c.entities[name]
	if !ok {
		e = Entity{Name: name}
	}
	e.Mentions++
	e.LastSeen = now
	c.entities[name] = e
	return e
}

// AddFact stores a keyed fact, replacing any previous value for the key.
func (c *Context) AddFact(key, value, source string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facts[key] = Fact{Key: key, Value: value, Source: source, Timestamp: now}
	c.lastUpdated = now
}

// SetPreference stores a user preference.
func (c *Context) SetPreference(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preferences[key] = value
	c.lastUpdated = c.now()
}

// Recent returns up to n most recent entries, oldest first.
func (c *Context) Recent(n int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]Entry, n)
	copy(out, c.entries[len(c.entries)-n:])
	return out
}

// Messages converts up to n recent entries into conversation messages,
// oldest first, for use as completion history.
func (c *Context) Messages(n int) []llm.Message {
	entries := c.Recent(n)
	out := make([]llm.Message, 0, 2*len(entries))
	for _, e := range entries {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: e.Query},
			llm.Message{Role: llm.RoleAssistant, Content: e.Answer},
		)
	}
	return out
}

// Entities returns a copy of the entity map.
func (c *Context) Entities() map[string]Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entity, len(c.entities))
	for k, v := range c.entities {
		out[k] = v
	}
	return out
}

// Facts returns a copy of the fact map.
func (c *Context) Facts() map[string]Fact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Fact, len(c.facts))
	for k, v := range c.facts {
		out[k] = v
	}
	return out
}

// Preferences returns a copy of the preference map.
func (c *Context) Preferences() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.preferences))
	for k, v := range c.preferences {
		out[k] = v
	}
	return out
}

// Stats reports aggregate conversation statistics. TotalQueries counts every
// AddMemory call, including exchanges already pruned from the entry list.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{TotalQueries: c.totalQueries, LastUpdated: c.lastUpdated}
	if c.totalQueries > 0 {
		s.AvgConfidence = c.confidenceSum / float64(c.totalQueries)
	}
	return s
}

// Summary renders the remembered preferences, facts, and entities as a
// compact block suitable for inclusion in a prompt. Returns "" when nothing
// has been remembered yet. Entries are sorted by key so the output is
// stable.
func (c *Context) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.preferences) == 0 && len(c.facts) == 0 && len(c.entities) == 0 {
		return ""
	}

	var b strings.Builder
	if len(c.preferences) > 0 {
		b.WriteString("User preferences:\n")
		for _, k := range sortedKeys(c.preferences) {
			fmt.Fprintf(&b, "- %s: %s\n", k, c.preferences[k])
		}
	}
	if len(c.facts) > 0 {
		b.WriteString("Known facts:\n")
		for _, k := range sortedKeys(c.facts) {
			fmt.Fprintf(&b, "- %s: %s\n", k, c.facts[k].Value)
		}
	}
	if len(c.entities) > 0 {
		b.WriteString("Mentioned:\n")
		for _, k := range sortedKeys(c.entities) {
			e := c.entities[k]
			if e.Type != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", e.Name, e.Type)
			} else {
				fmt.Fprintf(&b, "- %s\n", e.Name)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Clear resets all conversation state. The context stays registered and
// usable.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	c.entities = make(map[string]Entity)
	c.facts = make(map[string]Fact)
	c.preferences = make(map[string]string)
	c.totalQueries = 0
	c.confidenceSum = 0
	c.lastUpdated = c.now()
}
