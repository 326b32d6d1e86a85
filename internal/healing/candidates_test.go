package healing

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/relock/api/schemas"
)

// -- Test Setup Helpers --

// fullFingerprint exercises every generation strategy at once.
func fullFingerprint() *schemas.Fingerprint {
	return &schemas.Fingerprint{
		Tag:         "input",
		VisibleText: "Username",
		Attributes: map[string]string{
			"id":    "user-field",
			"name":  "username",
			"type":  "text",
			"class": "form-control required",
		},
		LabelText: "Username",
		DerivedPaths: map[schemas.Strategy]string{
			schemas.StrategyPositional:   "//form/input[1]",
			schemas.StrategyHierarchical: "/html[1]/body[1]/form[1]/input[1]",
		},
	}
}

// strategyRank maps each strategy to its position in the fixed priority order.
func strategyRank(t *testing.T) map[schemas.Strategy]int {
	t.Helper()
	rank := make(map[schemas.Strategy]int, len(schemas.StrategyOrder))
	for i, s := range schemas.StrategyOrder {
		rank[s] = i
	}
	return rank
}

// -- Test Cases: Ordering --

func TestGenerate_StrategyPriorityOrder(t *testing.T) {
	rank := strategyRank(t)
	candidates := Generate("user field", fullFingerprint())
	require.NotEmpty(t, candidates)

	assert.Equal(t, schemas.StrategyID, candidates[0].Strategy, "the id strategy must come first")
	assert.Equal(t, schemas.StrategyHierarchical, candidates[len(candidates)-1].Strategy,
		"the hierarchical path must come last")

	prev := -1
	for _, c := range candidates {
		r, ok := rank[c.Strategy]
		require.True(t, ok, "unexpected strategy %s", c.Strategy)
		assert.GreaterOrEqual(t, r, prev, "candidates must never regress in priority")
		prev = r
	}
}

func TestGenerate_AllStrategiesRepresented(t *testing.T) {
	candidates := Generate("user field", fullFingerprint())

	seen := make(map[schemas.Strategy]bool)
	for _, c := range candidates {
		seen[c.Strategy] = true
	}
	for _, s := range schemas.StrategyOrder {
		assert.True(t, seen[s], "strategy %s should have produced a candidate", s)
	}
}

// -- Test Cases: Per-Strategy Shapes --

func TestGenerate_ExpectedExpressions(t *testing.T) {
	candidates := Generate("user field", fullFingerprint())

	values := make(map[schemas.Strategy][]string)
	for _, c := range candidates {
		values[c.Strategy] = append(values[c.Strategy], c.Locator.Value)
		assert.Equal(t, schemas.QueryXPath, c.Locator.Language)
	}

	assert.Equal(t, []string{"//*[@id='user-field']"}, values[schemas.StrategyID])
	assert.Equal(t, []string{"//*[@name='username']"}, values[schemas.StrategyName])
	assert.Equal(t, []string{"//input[@type='text']"}, values[schemas.StrategyType])
	assert.Equal(t, []string{
		"//input[contains(@class,'form-control')]",
		"//input[contains(@class,'required')]",
	}, values[schemas.StrategyClass], "one candidate per class token, in token order")
	assert.Equal(t, []string{"//label[@for='user-field']/following::input[1]"}, values[schemas.StrategyLabel])
	assert.Equal(t, []string{"//*[text()='Username']"}, values[schemas.StrategyText])
	assert.Equal(t, []string{"//form/input[1]"}, values[schemas.StrategyPositional])
	assert.Equal(t, []string{"/html[1]/body[1]/form[1]/input[1]"}, values[schemas.StrategyHierarchical])

	require.Len(t, values[schemas.StrategyCombined], 1)
	combined := values[schemas.StrategyCombined][0]
	assert.True(t, strings.HasPrefix(combined, "//input["))
	assert.Contains(t, combined, "@id='user-field'")
	assert.Contains(t, combined, " and ")
}

func TestGenerate_AbsentAttributesProduceNoCandidates(t *testing.T) {
	fp := &schemas.Fingerprint{Tag: "div"}

	candidates := Generate("anything", fp)

	assert.Empty(t, candidates, "a fingerprint with no usable signals generates nothing")
}

func TestGenerate_NeverEmitsAbsentAttributeValues(t *testing.T) {
	fp := &schemas.Fingerprint{
		Tag:        "input",
		Attributes: map[string]string{"name": "email"},
	}

	for _, c := range Generate("email", fp) {
		assert.NotContains(t, c.Locator.Value, "@id=", "no id on the element, no id predicate")
		assert.NotContains(t, c.Locator.Value, "''", "no empty-valued predicates")
	}
}

func TestGenerate_SkipsValuesWithSingleQuotes(t *testing.T) {
	fp := fullFingerprint()
	fp.Attributes["id"] = "it's-complicated"
	fp.VisibleText = "don't click"

	for _, c := range Generate("x", fp) {
		assert.NotContains(t, c.Locator.Value, "it's", "unescapable values are skipped, not mangled")
		assert.NotContains(t, c.Locator.Value, "don't")
	}
}

func TestGenerate_TypeOnlyForTypedTags(t *testing.T) {
	fp := &schemas.Fingerprint{
		Tag:        "div",
		Attributes: map[string]string{"type": "button"},
	}

	for _, c := range Generate("x", fp) {
		assert.NotEqual(t, schemas.StrategyType, c.Strategy,
			"a type attribute on a div is noise, not a signal")
	}
}

func TestGenerate_LabelFallsBackToTextAssociation(t *testing.T) {
	fp := &schemas.Fingerprint{
		Tag:       "input",
		LabelText: "Email address",
	}

	candidates := Generate("email", fp)
	require.Len(t, candidates, 1)
	assert.Equal(t, schemas.StrategyLabel, candidates[0].Strategy)
	assert.Equal(t, "//label[text()='Email address']/following::input[1]", candidates[0].Locator.Value)
}

func TestGenerate_CombinedRequiresTwoAttributes(t *testing.T) {
	fp := &schemas.Fingerprint{
		Tag:        "input",
		Attributes: map[string]string{"name": "q"},
	}

	for _, c := range Generate("x", fp) {
		assert.NotEqual(t, schemas.StrategyCombined, c.Strategy)
	}
}

// -- Test Cases: Heuristic Generation (no fingerprint) --

func TestGenerate_NilFingerprintUsesHeuristics(t *testing.T) {
	candidates := Generate("login", nil)

	require.Len(t, candidates, 5)
	for _, c := range candidates {
		assert.Equal(t, schemas.StrategyHeuristic, c.Strategy)
		assert.Equal(t, schemas.QueryXPath, c.Locator.Language)
	}
	assert.Equal(t, "//*[@id='login']", candidates[0].Locator.Value, "id guess comes first")
	assert.Contains(t, candidates[2].Locator.Value, "Login", "placeholder guess capitalizes the name")
}

func TestGenerate_NilFingerprintUnsafeName(t *testing.T) {
	assert.Empty(t, Generate("it's a name", nil))
	assert.Empty(t, Generate("", nil))
}

// -- Test Cases: Robustness --

// FuzzGenerate_Robustness feeds arbitrary fingerprints through generation and
// checks the structural invariants hold for whatever comes out.
func FuzzGenerate_Robustness(f *testing.F) {
	f.Fuzz(func(t *testing.T, name string, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		fp := &schemas.Fingerprint{}
		if err := fuzzConsumer.GenerateStruct(fp); err != nil {
			return // Ignore inputs that can't be mapped to the struct.
		}
		// Recorded paths are replayed verbatim, so fuzzed ones prove nothing.
		fp.DerivedPaths = nil

		candidates := Generate(name, fp)

		rank := make(map[schemas.Strategy]int, len(schemas.StrategyOrder))
		for i, s := range schemas.StrategyOrder {
			rank[s] = i
		}

		prev := -1
		for _, c := range candidates {
			assert.Equal(t, schemas.QueryXPath, c.Locator.Language)
			assert.NotEmpty(t, c.Locator.Value, "no candidate may carry an empty locator")
			assert.NotContains(t, c.Locator.Value, "''", "no empty-valued predicates")
			if r, ok := rank[c.Strategy]; ok {
				assert.GreaterOrEqual(t, r, prev)
				prev = r
			}
		}
	})
}
