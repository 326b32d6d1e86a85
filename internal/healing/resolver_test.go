package healing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/relock/api/schemas"
	"github.com/xkilldash9x/relock/internal/dom"
	"github.com/xkilldash9x/relock/internal/mocks"
)

// -- Test Setup Helpers --

const baselineLoginHTML = `<html><body>
<form class="login">
  <label for="user">Username</label>
  <input id="user" name="username" type="text">
  <button id="go" type="submit">Sign in</button>
</form>
</body></html>`

func parseDoc(t *testing.T, fixture string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(fixture)
	require.NoError(t, err)
	return doc
}

// newTestResolver builds a resolver over the fixture with defaults suited for
// tests. The returned memory is shared, so a second resolver over a changed
// document can continue the same session.
func newTestResolver(t *testing.T, doc *dom.Document, memory *Memory, oracle schemas.SuggestionOracle, cfg Config) *Resolver {
	t.Helper()
	if cfg.ScanParallelism == 0 {
		cfg.ScanParallelism = 2
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.1
	}
	return NewResolver(doc, memory, oracle, nil, zap.NewNop(), cfg)
}

func css(value string) schemas.Locator {
	return schemas.Locator{Language: schemas.QueryCSS, Value: value}
}

// -- Test Cases: Learn --

func TestResolver_Learn_RecordsFingerprint(t *testing.T) {
	memory := NewMemory()
	r := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})

	handle, err := r.Learn(context.Background(), "user field", css("#user"))

	require.NoError(t, err)
	require.NotNil(t, handle)
	entry := memory.Get("user field")
	require.NotNil(t, entry)
	assert.Equal(t, css("#user"), entry.LastKnownGood)
	assert.Equal(t, "input", entry.Fingerprint.Tag)
}

func TestResolver_Learn_NotFound(t *testing.T) {
	r := newTestResolver(t, parseDoc(t, baselineLoginHTML), NewMemory(), nil, Config{})

	_, err := r.Learn(context.Background(), "ghost", css("#missing"))

	assert.ErrorIs(t, err, schemas.ErrElementNotFound)
}

func TestResolver_Learn_AmbiguousLocatorRejected(t *testing.T) {
	fixture := `<html><body><input name="q"><input name="q"></body></html>`
	r := newTestResolver(t, parseDoc(t, fixture), NewMemory(), nil, Config{})

	_, err := r.Learn(context.Background(), "search", css("input"))

	var ambiguous *schemas.AmbiguousMatchError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, 2, ambiguous.Count)
}

// -- Test Cases: Resolve Stage 1 (TRY_LAST_KNOWN) --

func TestResolver_Resolve_LastKnownStillValid(t *testing.T) {
	memory := NewMemory()
	r := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := r.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), "user field")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageTryLastKnown, res.Stage)
	assert.Equal(t, css("#user"), res.Locator)
	assert.Equal(t, css("#user"), memory.Get("user field").LastKnownGood,
		"a still-valid locator leaves memory untouched")
}

// -- Test Cases: Resolve Stage 2 (TRY_CANDIDATES) --

func TestResolver_Resolve_HealsViaNameCandidate(t *testing.T) {
	// The id was dropped in a refactor; the name survived.
	changedHTML := `<html><body>
<form class="login">
  <label>Username</label>
  <input name="username" type="text">
  <button type="submit">Sign in</button>
</form>
</body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	r := newTestResolver(t, parseDoc(t, changedHTML), memory, nil, Config{})
	res, err := r.Resolve(context.Background(), "user field")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageTryCandidates, res.Stage)
	assert.Equal(t, schemas.StrategyName, res.Strategy)
	assert.Equal(t, "//*[@name='username']", res.Locator.Value)

	entry := memory.Get("user field")
	assert.Equal(t, res.Locator, entry.LastKnownGood, "a healed locator becomes the new last known good")
	assert.False(t, entry.ExternallySourced)

	// The next resolution converges on the healed locator directly.
	again, err := r.Resolve(context.Background(), "user field")
	require.NoError(t, err)
	assert.Equal(t, schemas.StageTryLastKnown, again.Stage)
	assert.Equal(t, res.Locator, again.Locator)
}

func TestResolver_Resolve_AmbiguousCandidateIsSkippedNotPicked(t *testing.T) {
	// Two inputs share the learned name; only the type still disambiguates.
	changedHTML := `<html><body>
<form>
  <input name="username" type="text">
  <input name="username" type="hidden">
</form>
</body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	r := NewResolver(parseDoc(t, changedHTML), memory, nil, nil, zap.New(loggerCore), Config{Threshold: 0.1, ScanParallelism: 2})

	res, err := r.Resolve(context.Background(), "user field")

	require.NoError(t, err)
	assert.Equal(t, schemas.StrategyType, res.Strategy,
		"the ambiguous name candidate must be skipped, never first-picked")
	assert.Equal(t, "//input[@type='text']", res.Locator.Value)

	skipLogs := observedLogs.FilterMessage("Candidate ambiguous, skipping")
	assert.Equal(t, 1, skipLogs.Len())
	assert.Equal(t, int64(2), skipLogs.All()[0].ContextMap()["matches"])
}

func TestResolver_Resolve_DuplicateIDsMakeIDCandidateAmbiguous(t *testing.T) {
	// Malformed DOM: a copy-paste duplicated the id. The last known "#user"
	// and the regenerated id candidate both match twice, so resolution has to
	// fall through to the name strategy.
	changedHTML := `<html><body>
<form>
  <input id="user" type="hidden">
  <input id="user" name="username" type="text">
</form>
</body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	loggerCore, observedLogs := observer.New(zap.DebugLevel)
	r := NewResolver(parseDoc(t, changedHTML), memory, nil, nil, zap.New(loggerCore), Config{Threshold: 0.1, ScanParallelism: 2})

	res, err := r.Resolve(context.Background(), "user field")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageTryCandidates, res.Stage)
	assert.Equal(t, schemas.StrategyName, res.Strategy)
	assert.Equal(t, "//*[@name='username']", res.Locator.Value)

	skipLogs := observedLogs.FilterMessage("Candidate ambiguous, skipping")
	require.Equal(t, 1, skipLogs.Len())
	assert.Equal(t, "id", skipLogs.All()[0].ContextMap()["strategy"])
	assert.Equal(t, int64(2), skipLogs.All()[0].ContextMap()["matches"])
}

func TestResolver_Resolve_UnlearnedNameUsesHeuristics(t *testing.T) {
	fixture := `<html><body><button id="login">Log in</button></body></html>`
	r := newTestResolver(t, parseDoc(t, fixture), NewMemory(), nil, Config{})

	res, err := r.Resolve(context.Background(), "login")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageTryCandidates, res.Stage)
	assert.Equal(t, schemas.StrategyHeuristic, res.Strategy)
	assert.Equal(t, "//*[@id='login']", res.Locator.Value)
}

func TestResolver_Resolve_UnlearnedNameFailure(t *testing.T) {
	fixture := `<html><body><p>nothing useful</p></body></html>`
	r := newTestResolver(t, parseDoc(t, fixture), NewMemory(), nil, Config{})

	res, err := r.Resolve(context.Background(), "login")

	assert.Nil(t, res)
	var notFound *schemas.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "login", notFound.LogicalName)
	assert.Equal(t, schemas.StageTryCandidates, notFound.Stage,
		"without a fingerprint the scan never runs")
	assert.ErrorIs(t, err, schemas.ErrNotLearned)
}

// -- Test Cases: Resolve Stage 3 (GLOBAL_SCAN) --

func TestResolver_Resolve_GlobalScanFindsDriftedElement(t *testing.T) {
	// The scan fans extraction out across workers; none may outlive the call.
	defer goleak.VerifyNone(t)

	baseline := `<html><body>
<form>
  <button id="btn" type="submit">Login</button>
</form>
</body></html>`
	// Every learned signal drifted: id gone, type changed, text reworded,
	// structure reshaped. Only similarity can recover this one.
	changed := `<html><body>
<form>
  <div><button type="button">Log in</button></div>
</form>
</body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baseline), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "login button", css("#btn"))
	require.NoError(t, err)

	changedDoc := parseDoc(t, changed)
	r := newTestResolver(t, changedDoc, memory, nil, Config{})

	res, err := r.Resolve(context.Background(), "login button")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageGlobalScan, res.Stage)
	assert.Greater(t, res.Score, 0.1)

	text, err := res.Handle.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Log in", text, "the scan must land on the drifted button")

	// Memory invariant: the rebound locator resolves to exactly one element.
	entry := memory.Get("login button")
	matches, err := changedDoc.FindAll(context.Background(), entry.LastKnownGood)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestResolver_Resolve_ScanRejectsBelowThreshold(t *testing.T) {
	changed := `<html><body><table><td>order totals</td></table></body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	r := newTestResolver(t, parseDoc(t, changed), memory, nil, Config{Threshold: 0.95})
	res, err := r.Resolve(context.Background(), "user field")

	assert.Nil(t, res)
	var notFound *schemas.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, schemas.StageGlobalScan, notFound.Stage)
}

// -- Test Cases: Resolve Stage 4 (EXTERNAL_SUGGESTION) --

func TestResolver_Resolve_OracleSuggestionAccepted(t *testing.T) {
	changed := `<html><body><div data-testid="user-input-v2"><input data-testid="inner"></div></body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	suggestion := schemas.Locator{Language: schemas.QueryCSS, Value: "input[data-testid='inner']"}
	oracle := &mocks.MockSuggestionOracle{}
	oracle.On("Suggest", mock.Anything, mock.MatchedBy(func(req schemas.SuggestionRequest) bool {
		return req.LogicalName == "user field" &&
			req.FailingLocator == css("#user") &&
			req.DOMSnapshot != ""
	})).Return(suggestion, nil).Once()

	r := newTestResolver(t, parseDoc(t, changed), memory, oracle, Config{Threshold: 0.95})
	res, err := r.Resolve(context.Background(), "user field")

	require.NoError(t, err)
	assert.Equal(t, schemas.StageExternalSuggestion, res.Stage)
	assert.Equal(t, schemas.StrategyOracle, res.Strategy)
	assert.True(t, res.ExternallySourced)
	assert.Equal(t, suggestion, res.Locator)

	entry := memory.Get("user field")
	assert.Equal(t, suggestion, entry.LastKnownGood)
	assert.True(t, entry.ExternallySourced, "oracle-sourced entries stay flagged for review")
	oracle.AssertExpectations(t)
}

func TestResolver_Resolve_OracleFailureTerminatesResolution(t *testing.T) {
	changed := `<html><body><p>unrelated</p></body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	oracleErr := &schemas.OracleError{Reason: "generation failed"}
	oracle := &mocks.MockSuggestionOracle{}
	oracle.On("Suggest", mock.Anything, mock.Anything).Return(schemas.Locator{}, oracleErr).Once()

	r := newTestResolver(t, parseDoc(t, changed), memory, oracle, Config{Threshold: 0.95})
	res, err := r.Resolve(context.Background(), "user field")

	assert.Nil(t, res)
	var notFound *schemas.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, schemas.StageExternalSuggestion, notFound.Stage)
	var wrapped *schemas.OracleError
	assert.ErrorAs(t, err, &wrapped, "the oracle failure must stay visible in the chain")
	oracle.AssertExpectations(t)
}

func TestResolver_Resolve_OracleSuggestionMustResolve(t *testing.T) {
	changed := `<html><body><p>unrelated</p></body></html>`

	memory := NewMemory()
	learner := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := learner.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	oracle := &mocks.MockSuggestionOracle{}
	oracle.On("Suggest", mock.Anything, mock.Anything).
		Return(schemas.Locator{Language: schemas.QueryCSS, Value: "#hallucinated"}, nil).Once()

	r := newTestResolver(t, parseDoc(t, changed), memory, oracle, Config{Threshold: 0.95})
	res, err := r.Resolve(context.Background(), "user field")

	assert.Nil(t, res)
	var notFound *schemas.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, schemas.StageExternalSuggestion, notFound.Stage)
	assert.NotEqual(t, schemas.Locator{Language: schemas.QueryCSS, Value: "#hallucinated"},
		memory.Get("user field").LastKnownGood,
		"a non-resolving suggestion must never be recorded")
	oracle.AssertExpectations(t)
}

// -- Test Cases: Context Handling --

func TestResolver_Resolve_CancelledContext(t *testing.T) {
	memory := NewMemory()
	r := newTestResolver(t, parseDoc(t, baselineLoginHTML), memory, nil, Config{})
	_, err := r.Learn(context.Background(), "user field", css("#user"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Resolve(ctx, "user field")
	assert.True(t, errors.Is(err, context.Canceled))
}
