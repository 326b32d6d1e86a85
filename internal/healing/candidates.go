// internal/healing/candidates.go
package healing

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/relock/api/schemas"
)

// typedTags are the tags for which a type attribute is a meaningful signal.
var typedTags = map[string]bool{
	"input":    true,
	"button":   true,
	"select":   true,
	"textarea": true,
}

// strategyFunc builds zero or more locator candidates for one strategy from a
// prior fingerprint. A strategy that has nothing to work with returns nil; it
// never errors.
type strategyFunc func(fp *schemas.Fingerprint) []schemas.Candidate

// strategyTable dispatches each strategy tag to its generator. The resolver
// iterates strategies in schemas.StrategyOrder, so the map needs no ordering
// of its own.
var strategyTable = map[schemas.Strategy]strategyFunc{
	schemas.StrategyID:           idCandidates,
	schemas.StrategyName:         nameCandidates,
	schemas.StrategyType:         typeCandidates,
	schemas.StrategyClass:        classCandidates,
	schemas.StrategyLabel:        labelCandidates,
	schemas.StrategyText:         textCandidates,
	schemas.StrategyCombined:     combinedCandidates,
	schemas.StrategyPositional:   derivedPathCandidate(schemas.StrategyPositional),
	schemas.StrategyHierarchical: derivedPathCandidate(schemas.StrategyHierarchical),
}

// Generate produces the ordered sequence of deterministic locator candidates
// for a logical name. With a prior fingerprint the nine path strategies run
// in fixed priority order, most stable signals first. Without one, only
// generic heuristic candidates parameterized by the name itself are produced.
func Generate(logicalName string, fp *schemas.Fingerprint) []schemas.Candidate {
	if fp == nil {
		return heuristicCandidates(logicalName)
	}

	var out []schemas.Candidate
	for _, strat := range schemas.StrategyOrder {
		gen, ok := strategyTable[strat]
		if !ok {
			continue
		}
		out = append(out, gen(fp)...)
	}
	return out
}

func xpathCandidate(strat schemas.Strategy, expr string) schemas.Candidate {
	return schemas.Candidate{
		Strategy: strat,
		Locator:  schemas.Locator{Language: schemas.QueryXPath, Value: expr},
	}
}

// safeValue reports whether v can be embedded in a single-quoted XPath
// literal. Values carrying a single quote are skipped rather than escaped;
// the concat() workaround is not worth the parser surface it drags in.
func safeValue(v string) bool {
	return v != "" && !strings.ContainsRune(v, '\'')
}

func idCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	id := fp.Attr("id")
	if !safeValue(id) {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyID, fmt.Sprintf("//*[@id='%s']", id)),
	}
}

func nameCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	name := fp.Attr("name")
	if !safeValue(name) {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyName, fmt.Sprintf("//*[@name='%s']", name)),
	}
}

func typeCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	typ := fp.Attr("type")
	if !safeValue(typ) || !typedTags[fp.Tag] {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyType, fmt.Sprintf("//%s[@type='%s']", fp.Tag, typ)),
	}
}

// classCandidates emits one candidate per class token, preserving token order.
func classCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	class := fp.Attr("class")
	if class == "" || fp.Tag == "" {
		return nil
	}
	var out []schemas.Candidate
	for _, token := range strings.Fields(class) {
		if !safeValue(token) {
			continue
		}
		out = append(out, xpathCandidate(
			schemas.StrategyClass,
			fmt.Sprintf("//%s[contains(@class,'%s')]", fp.Tag, token),
		))
	}
	return out
}

// labelCandidates pairs a <label for=id> with a following-input traversal
// when the element has an id, and otherwise falls back to a following::
// heuristic keyed on the visible label text.
func labelCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	if fp.LabelText == "" {
		return nil
	}
	target := fp.Tag
	if target == "" {
		target = "input"
	}

	if id := fp.Attr("id"); safeValue(id) {
		return []schemas.Candidate{
			xpathCandidate(schemas.StrategyLabel,
				fmt.Sprintf("//label[@for='%s']/following::%s[1]", id, target)),
		}
	}
	if !safeValue(fp.LabelText) {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyLabel,
			fmt.Sprintf("//label[text()='%s']/following::%s[1]", fp.LabelText, target)),
	}
}

func textCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	if !safeValue(fp.VisibleText) {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyText, fmt.Sprintf("//*[text()='%s']", fp.VisibleText)),
	}
}

// combinedCandidates joins id/class/name/type with "and" when more than one
// of them is present on the fingerprint.
func combinedCandidates(fp *schemas.Fingerprint) []schemas.Candidate {
	var parts []string
	for _, key := range []string{"id", "class", "name", "type"} {
		if v := fp.Attr(key); safeValue(v) {
			parts = append(parts, fmt.Sprintf("@%s='%s'", key, v))
		}
	}
	if len(parts) < 2 || fp.Tag == "" {
		return nil
	}
	return []schemas.Candidate{
		xpathCandidate(schemas.StrategyCombined,
			fmt.Sprintf("//%s[%s]", fp.Tag, strings.Join(parts, " and "))),
	}
}

// derivedPathCandidate replays the path recorded at extraction time; the
// positional and hierarchical strategies need the original DOM context and
// cannot be rebuilt from attributes alone.
func derivedPathCandidate(strat schemas.Strategy) strategyFunc {
	return func(fp *schemas.Fingerprint) []schemas.Candidate {
		path, ok := fp.DerivedPaths[strat]
		if !ok || path == "" {
			return nil
		}
		return []schemas.Candidate{xpathCandidate(strat, path)}
	}
}

// heuristicCandidates guesses locators from nothing but the logical name.
// These mirror the guesses a tester would type first: the name as id, as
// name attribute, inside a placeholder, and as label or visible text.
func heuristicCandidates(name string) []schemas.Candidate {
	if !safeValue(name) {
		return nil
	}
	capitalized := name
	if len(name) > 0 {
		capitalized = strings.ToUpper(name[:1]) + name[1:]
	}

	exprs := []string{
		fmt.Sprintf("//*[@id='%s']", name),
		fmt.Sprintf("//*[@name='%s']", name),
		fmt.Sprintf("//input[contains(@placeholder,'%s')]", capitalized),
		fmt.Sprintf("//label[text()='%s']/following::input[1]", name),
		fmt.Sprintf("//*[text()='%s']", name),
	}

	out := make([]schemas.Candidate, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, xpathCandidate(schemas.StrategyHeuristic, e))
	}
	return out
}

// generateFromFingerprint is the derivation used when recording a
// fingerprint's own path strings; identical to Generate minus the positional
// and hierarchical strategies, which are computed from the live node.
func generateFromFingerprint(fp *schemas.Fingerprint) []schemas.Candidate {
	var out []schemas.Candidate
	for _, strat := range schemas.StrategyOrder {
		if strat == schemas.StrategyPositional || strat == schemas.StrategyHierarchical {
			continue
		}
		out = append(out, strategyTable[strat](fp)...)
	}
	return out
}
