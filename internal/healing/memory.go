// internal/healing/memory.go
package healing

import (
	"sort"
	"time"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Memory is the in-process element memory: a mapping from logical name to the
// last learned fingerprint and last successful locator. One Memory belongs to
// exactly one session; it is intentionally unsynchronized because each
// resolution pass owns its entry exclusively while it runs. Sessions that
// need durability wrap it with a schemas.MemoryStore snapshot.
type Memory struct {
	entries map[string]*schemas.MemoryEntry
	now     func() time.Time
}

// NewMemory creates an empty element memory.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*schemas.MemoryEntry),
		now:     time.Now,
	}
}

// Learn records a fresh entry for the logical name. The last-known-good
// locator starts out as the original one, so the next resolve prefers it
// directly.
func (m *Memory) Learn(name string, original schemas.Locator, fp *schemas.Fingerprint) {
	m.entries[name] = &schemas.MemoryEntry{
		LogicalName:     name,
		OriginalLocator: original,
		Fingerprint:     fp,
		LastKnownGood:   original,
		UpdatedAt:       m.now(),
	}
}

// Get returns the entry for the logical name, or nil if it was never learned.
// Callers receive the live entry; the resolver is the only writer.
func (m *Memory) Get(name string) *schemas.MemoryEntry {
	return m.entries[name]
}

// Update refreshes the last-known-good locator after a successful recovery,
// and replaces the stored fingerprint when the recovery produced a new one.
// Subsequent lookups converge toward the current DOM structure.
func (m *Memory) Update(name string, newLocator schemas.Locator, fp *schemas.Fingerprint, external bool) {
	entry, ok := m.entries[name]
	if !ok {
		m.Learn(name, newLocator, fp)
		entry = m.entries[name]
		entry.ExternallySourced = external
		return
	}
	entry.LastKnownGood = newLocator
	if fp != nil {
		entry.Fingerprint = fp
	}
	entry.ExternallySourced = external
	entry.UpdatedAt = m.now()
}

// Entries returns a copy of all entries ordered by logical name, suitable for
// snapshot persistence.
func (m *Memory) Entries() []schemas.MemoryEntry {
	out := make([]schemas.MemoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogicalName < out[j].LogicalName })
	return out
}

// Restore replaces the memory contents from a persisted snapshot.
func (m *Memory) Restore(entries []schemas.MemoryEntry) {
	m.entries = make(map[string]*schemas.MemoryEntry, len(entries))
	for i := range entries {
		e := entries[i]
		m.entries[e.LogicalName] = &e
	}
}
