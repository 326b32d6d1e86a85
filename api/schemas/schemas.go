// api/schemas/schemas.go
package schemas

import (
	"fmt"
	"time"
)

// QueryLanguage identifies the query language a locator string is written in.
// The DOM capability must support at least CSS selectors and XPath.
type QueryLanguage string

const (
	QueryCSS   QueryLanguage = "css"
	QueryXPath QueryLanguage = "xpath"
)

// Strategy tags the generation strategy that produced a locator candidate.
// The ordering of the constants mirrors the resolution priority: strategies
// are ranked from most semantically stable (id, name) to most fragile
// (position, full hierarchy).
type Strategy string

const (
	StrategyID           Strategy = "id"
	StrategyName         Strategy = "name"
	StrategyType         Strategy = "type"
	StrategyClass        Strategy = "class"
	StrategyLabel        Strategy = "label"
	StrategyText         Strategy = "text"
	StrategyCombined     Strategy = "combined"
	StrategyPositional   Strategy = "positional"
	StrategyHierarchical Strategy = "hierarchical"

	// StrategyHeuristic marks candidates guessed purely from the logical name
	// when no prior fingerprint exists.
	StrategyHeuristic Strategy = "heuristic"
	// StrategyOracle marks a locator sourced from the external suggestion
	// oracle rather than from deterministic generation.
	StrategyOracle Strategy = "oracle"
)

// StrategyOrder is the fixed priority in which generated candidates are tried.
var StrategyOrder = []Strategy{
	StrategyID,
	StrategyName,
	StrategyType,
	StrategyClass,
	StrategyLabel,
	StrategyText,
	StrategyCombined,
	StrategyPositional,
	StrategyHierarchical,
}

// Stage identifies a state of the resolver's recovery state machine. It is
// carried on errors and resolutions so callers can tell how far recovery got.
type Stage string

const (
	StageInitial            Stage = "INITIAL"
	StageTryLastKnown       Stage = "TRY_LAST_KNOWN"
	StageTryCandidates      Stage = "TRY_CANDIDATES"
	StageGlobalScan         Stage = "GLOBAL_SCAN"
	StageExternalSuggestion Stage = "EXTERNAL_SUGGESTION"
	StageResolved           Stage = "RESOLVED"
	StageFailed             Stage = "FAILED"
)

// Locator is a query-language tagged locator string identifying zero or more
// DOM nodes.
type Locator struct {
	Language QueryLanguage `json:"language"`
	Value    string        `json:"value"`
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Value == "" }

func (l Locator) String() string {
	return fmt.Sprintf("%s:%s", l.Language, l.Value)
}

// Candidate is a generated locator plus the strategy tag that produced it.
// Candidates are transient; they exist only during one resolution attempt.
type Candidate struct {
	Strategy Strategy `json:"strategy"`
	Locator  Locator  `json:"locator"`
}

// Point is a viewport-relative coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is an element's rendered width and height.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AncestorInfo captures one ancestor level for the deeper structural
// similarity variant: its tag, identifying attributes and the offset of the
// element relative to that ancestor.
type AncestorInfo struct {
	Tag     string  `json:"tag"`
	ID      string  `json:"id,omitempty"`
	Class   string  `json:"class,omitempty"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Fingerprint is an immutable snapshot of a target element's identifying
// features at learning time. It is a pure function of one DOM node at one
// instant and is never mutated after creation; recovery produces a new
// Fingerprint that may replace the stored one.
type Fingerprint struct {
	// Tag is the lower-case element tag name.
	Tag string `json:"tag"`
	// VisibleText is the trimmed text content of the element itself.
	VisibleText string `json:"visible_text"`
	// Attributes holds the allow-listed attributes present on the element.
	Attributes map[string]string `json:"attributes"`
	// Position and Size describe the bounding box at snapshot time.
	Position Point `json:"position"`
	Size     Size  `json:"size"`
	// AncestorText is the text content of the immediate parent.
	AncestorText string `json:"ancestor_text"`
	// Ancestors lists up to N ancestor levels for the ancestor-chain scorer.
	Ancestors []AncestorInfo `json:"ancestors,omitempty"`
	// LabelText is the visible text of an associated <label>, if any.
	LabelText string `json:"label_text,omitempty"`
	// DerivedPaths maps each path strategy that produced a locator for this
	// node to the generated path string. Strategies that could not produce a
	// path contribute no entry.
	DerivedPaths map[Strategy]string `json:"derived_paths"`
}

// Attr returns the named attribute value, or "" if absent.
func (f *Fingerprint) Attr(name string) string {
	if f == nil || f.Attributes == nil {
		return ""
	}
	return f.Attributes[name]
}

// MemoryEntry is the per-logical-name record owned exclusively by the element
// memory. Created on learn, updated whenever a non-primary strategy resolves
// successfully, and never independently destroyed; its lifetime equals the
// test session.
type MemoryEntry struct {
	LogicalName     string       `json:"logical_name"`
	OriginalLocator Locator      `json:"original_locator"`
	Fingerprint     *Fingerprint `json:"fingerprint"`
	LastKnownGood   Locator      `json:"last_known_good"`
	// ExternallySourced is set when the current LastKnownGood came from the
	// suggestion oracle; callers may want to flag such entries for review.
	ExternallySourced bool      `json:"externally_sourced"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Resolution describes a successful resolve() outcome.
type Resolution struct {
	LogicalName string
	Handle      ElementHandle
	Locator     Locator
	Stage       Stage
	Strategy    Strategy
	// Score is the similarity score that accepted the element; only set when
	// Stage is GLOBAL_SCAN.
	Score             float64
	ExternallySourced bool
}

// SuggestionRequest is the input to the external suggestion oracle.
type SuggestionRequest struct {
	LogicalName    string
	FailingLocator Locator
	DOMSnapshot    string
	ErrorContext   string
}
