// internal/classify/classify.go

// Package classify labels locator strings with the taxonomy their structure
// implies. It is a pure batch utility with no coupling to the resolution
// engine; suites use it to audit which strategies their locators lean on.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Label is a human-readable locator taxonomy class.
type Label string

const (
	LabelID           Label = "ID-based XPath"
	LabelClass        Label = "Class-based XPath"
	LabelName         Label = "Name-based XPath"
	LabelType         Label = "Type-based XPath"
	LabelLabel        Label = "Label-based XPath"
	LabelCombined     Label = "Combination of attributes"
	LabelText         Label = "Text-based XPath"
	LabelPositional   Label = "Positional XPath"
	LabelHierarchical Label = "Parent-child hierarchy XPath"
	LabelCSS          Label = "CSS selector"
	LabelUnknown      Label = "Unknown locator type"
)

// Result pairs a locator string with its detected label and the strategy it
// corresponds to in the candidate priority order (empty for CSS/unknown).
type Result struct {
	Locator  string
	Label    Label
	Strategy schemas.Strategy
}

var (
	idPattern       = regexp.MustCompile(`@id=`)
	classPattern    = regexp.MustCompile(`contains\(@class`)
	namePattern     = regexp.MustCompile(`@name=`)
	typePattern     = regexp.MustCompile(`@type=`)
	labelPattern    = regexp.MustCompile(`(?:^|/)label\b`)
	textPattern     = regexp.MustCompile(`text\(\)`)
	indexPattern    = regexp.MustCompile(`\[\d+\]`)
	combinedPattern = regexp.MustCompile(`@id=.*contains\(@class|@name=.*@type|\band\b`)
)

// Classify labels one locator string. XPath shapes are checked from most
// semantically specific to most structural, matching the candidate priority
// order, so a combined locator never falls through to its weaker parts.
func Classify(locator string) Result {
	trimmed := strings.TrimSpace(locator)
	res := Result{Locator: trimmed}

	if trimmed == "" {
		res.Label = LabelUnknown
		return res
	}

	if !strings.HasPrefix(trimmed, "/") {
		res.Label = LabelCSS
		return res
	}

	switch {
	case combinedPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelCombined, schemas.StrategyCombined
	case idPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelID, schemas.StrategyID
	case namePattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelName, schemas.StrategyName
	case typePattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelType, schemas.StrategyType
	case classPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelClass, schemas.StrategyClass
	case labelPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelLabel, schemas.StrategyLabel
	case textPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelText, schemas.StrategyText
	case strings.HasPrefix(trimmed, "/html"):
		res.Label, res.Strategy = LabelHierarchical, schemas.StrategyHierarchical
	case indexPattern.MatchString(trimmed):
		res.Label, res.Strategy = LabelPositional, schemas.StrategyPositional
	case strings.Contains(trimmed, "/"):
		res.Label, res.Strategy = LabelHierarchical, schemas.StrategyHierarchical
	default:
		res.Label = LabelUnknown
	}
	return res
}

// ClassifyAll labels a batch of locator strings in input order.
func ClassifyAll(locators []string) []Result {
	results := make([]Result, len(locators))
	for i, loc := range locators {
		results[i] = Classify(loc)
	}
	return results
}

// String implements fmt.Stringer for log and CLI output.
func (r Result) String() string {
	return fmt.Sprintf("%s => %s", r.Locator, r.Label)
}
