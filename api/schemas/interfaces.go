// api/schemas/interfaces.go
package schemas

import (
	"context"
)

// -- DOM Capability Interfaces --

// ElementHandle is a reference to one live DOM node. Accessors may fail if
// the underlying node has gone stale (detached from the document); callers
// must treat such failures as "element vanished", not as a similarity case.
type ElementHandle interface {
	// TagName returns the lower-case element tag name.
	TagName(ctx context.Context) (string, error)
	// Text returns the trimmed text content of the element itself.
	Text(ctx context.Context) (string, error)
	// Attributes returns all attributes present on the element.
	Attributes(ctx context.Context) (map[string]string, error)
	// BoundingBox returns the viewport-relative position and size.
	BoundingBox(ctx context.Context) (Point, Size, error)
	// Parent returns the parent element handle, or nil at the document root.
	Parent(ctx context.Context) (ElementHandle, error)
	// SiblingIndex returns the 1-based index of the element among same-tag
	// siblings and among all element siblings.
	SiblingIndex(ctx context.Context) (sameTag int, overall int, err error)
	// AssociatedLabel returns the visible text of a <label> associated with
	// this element (via for= or ancestry), or "" if none exists.
	AssociatedLabel(ctx context.Context) (string, error)
}

// DOMQuery is the DOM-query capability the resolver consumes. Implementations
// wrap a live browser session or a parsed static document; the resolver never
// manages browser lifecycle itself.
type DOMQuery interface {
	// FindOne resolves the locator to a single element. It returns
	// ErrElementNotFound when nothing matches and an AmbiguousMatchError when
	// more than one element matches.
	FindOne(ctx context.Context, loc Locator) (ElementHandle, error)
	// FindAll resolves the locator to all matching elements in document order.
	FindAll(ctx context.Context, loc Locator) ([]ElementHandle, error)
	// AllElements enumerates every element in the current document in
	// document order. This backs the global similarity scan.
	AllElements(ctx context.Context) ([]ElementHandle, error)
	// Snapshot serializes the current document, for oracle prompts and
	// diagnostics.
	Snapshot(ctx context.Context) (string, error)
}

// -- Element Memory Interfaces --

// ElementMemory maps logical names to the last learned fingerprint and last
// successful locator. One instance belongs to exactly one session; it is not
// safe for unsynchronized concurrent writers to the same key.
type ElementMemory interface {
	// Learn records a fresh entry for the logical name.
	Learn(name string, original Locator, fp *Fingerprint)
	// Get returns the entry for the logical name, or nil if never learned.
	Get(name string) *MemoryEntry
	// Update refreshes the last-known-good locator and optionally the
	// fingerprint after a successful recovery.
	Update(name string, newLocator Locator, fp *Fingerprint, external bool)
	// Entries returns a copy of all entries, for snapshot persistence.
	Entries() []MemoryEntry
	// Restore replaces the memory contents from a persisted snapshot.
	Restore(entries []MemoryEntry)
}

// MemoryStore is the optional durability extension for element memory. The
// core contract does not require persistence; stores exist so long-lived
// suites can carry healed locators across processes.
type MemoryStore interface {
	// SaveSnapshot persists all entries under the given session ID.
	SaveSnapshot(ctx context.Context, sessionID string, entries []MemoryEntry) error
	// LoadSnapshot retrieves the entries persisted under the session ID.
	// A missing snapshot yields an empty slice, not an error.
	LoadSnapshot(ctx context.Context, sessionID string) ([]MemoryEntry, error)
}

// -- Suggestion Oracle Interface --

// SuggestionOracle is the untrusted, possibly-malformed, rate-limited
// last-resort locator source. Implementations must validate that the returned
// text parses as a single locator before handing it back; any transport or
// parse failure surfaces as an OracleError.
type SuggestionOracle interface {
	Suggest(ctx context.Context, req SuggestionRequest) (Locator, error)
}

// -- LLM Client Schemas & Interface --

// ModelTier selects a large language model by a preference for speed versus
// capability.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls the text generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Tier         ModelTier         `json:"tier"`          // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// GenerateResponse produces a text completion for the provided request.
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}
