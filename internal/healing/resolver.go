// internal/healing/resolver.go
package healing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Config tunes the resolver. The acceptance threshold is a configuration
// choice, not a constant, because scorer quality varies by profile: the
// lightweight lexical scorer works at 0.1 while a high-confidence embedding
// profile wants 0.8.
type Config struct {
	// Threshold is the global-scan acceptance threshold; a scanned element is
	// accepted only if its score strictly exceeds it.
	Threshold float64
	// ScanParallelism bounds concurrent fingerprint extraction during the
	// global scan. Values below 2 keep the scan fully sequential.
	ScanParallelism int
	// SnapshotLimit truncates the DOM snapshot handed to the oracle, in
	// bytes. Zero means no truncation.
	SnapshotLimit int
}

// Resolver drives locator recovery for one session. It owns the session's
// element memory, consumes a DOM-query capability, and optionally delegates
// to an external suggestion oracle as a last resort. All dependencies are
// passed in explicitly; there is no ambient global instance.
type Resolver struct {
	dom    schemas.DOMQuery
	memory schemas.ElementMemory
	oracle schemas.SuggestionOracle // nil disables the suggestion stage
	scorer *Scorer
	log    *zap.Logger
	cfg    Config
}

// NewResolver wires a resolver. oracle may be nil, in which case resolution
// fails after the global scan.
func NewResolver(dom schemas.DOMQuery, memory schemas.ElementMemory, oracle schemas.SuggestionOracle, scorer *Scorer, logger *zap.Logger, cfg Config) *Resolver {
	if scorer == nil {
		scorer = NewScorer()
	}
	if cfg.ScanParallelism < 1 {
		cfg.ScanParallelism = 1
	}
	return &Resolver{
		dom:    dom,
		memory: memory,
		oracle: oracle,
		scorer: scorer,
		log:    logger.Named("resolver"),
		cfg:    cfg,
	}
}

// Learn resolves the locator, fingerprints the matched element, and records
// it under the logical name. The locator must match exactly one element.
func (r *Resolver) Learn(ctx context.Context, name string, loc schemas.Locator) (schemas.ElementHandle, error) {
	handle, err := r.findUnique(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("learning %q: %w", name, err)
	}
	fp, err := Extract(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("learning %q: %w", name, err)
	}
	r.memory.Learn(name, loc, fp)
	r.log.Info("Learned element",
		zap.String("name", name),
		zap.String("locator", loc.String()),
		zap.String("tag", fp.Tag),
	)
	return handle, nil
}

// Resolve finds the element registered under the logical name, healing the
// locator if the DOM has drifted. Stages run in a fixed order: the last known
// good locator, then generated candidates by priority, then a similarity scan
// over the whole document, then (if configured) one oracle suggestion. Every
// successful non-primary path refreshes the element memory, so subsequent
// lookups converge toward the current DOM structure.
func (r *Resolver) Resolve(ctx context.Context, name string) (*schemas.Resolution, error) {
	log := r.log.With(zap.String("name", name))
	entry := r.memory.Get(name)

	// Stage 1: TRY_LAST_KNOWN. Memory stays untouched on success; the
	// locator is still valid.
	if entry != nil && !entry.LastKnownGood.IsZero() {
		if handle, err := r.findUnique(ctx, entry.LastKnownGood); err == nil {
			log.Debug("Resolved via last known locator",
				zap.String("locator", entry.LastKnownGood.String()))
			return &schemas.Resolution{
				LogicalName:       name,
				Handle:            handle,
				Locator:           entry.LastKnownGood,
				Stage:             schemas.StageTryLastKnown,
				ExternallySourced: entry.ExternallySourced,
			}, nil
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug("Last known locator failed, escalating",
			zap.String("locator", entry.LastKnownGood.String()))
	}

	var fp *schemas.Fingerprint
	if entry != nil {
		fp = entry.Fingerprint
	}

	// Stage 2: TRY_CANDIDATES, in strict priority order. An ambiguous match
	// is a non-match for that strategy, never a "pick the first".
	if res, err := r.tryCandidates(ctx, name, fp); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}

	// Stage 3: GLOBAL_SCAN. Needs a stored fingerprint to score against.
	if fp != nil {
		res, err := r.globalScan(ctx, name, fp)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	// Stage 4: EXTERNAL_SUGGESTION, at most once.
	if r.oracle != nil {
		return r.askOracle(ctx, name, entry)
	}

	lastStage := schemas.StageTryCandidates
	if fp != nil {
		lastStage = schemas.StageGlobalScan
	}
	err := &schemas.NotFoundError{LogicalName: name, Stage: lastStage}
	if entry == nil {
		err.Err = schemas.ErrNotLearned
	}
	return nil, err
}

// tryCandidates iterates the generated candidates and returns the first one
// that resolves to exactly one live element. A nil resolution with a nil
// error means exhaustion.
func (r *Resolver) tryCandidates(ctx context.Context, name string, fp *schemas.Fingerprint) (*schemas.Resolution, error) {
	for _, cand := range Generate(name, fp) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		handle, err := r.findUnique(ctx, cand.Locator)
		if err != nil {
			var ambiguous *schemas.AmbiguousMatchError
			if errors.As(err, &ambiguous) {
				r.log.Debug("Candidate ambiguous, skipping",
					zap.String("name", name),
					zap.String("strategy", string(cand.Strategy)),
					zap.Int("matches", ambiguous.Count),
				)
			}
			continue
		}

		freshFP, err := Extract(ctx, handle)
		if err != nil {
			// The element vanished between match and fingerprinting; treat
			// the candidate as dead and move on.
			continue
		}

		r.memory.Update(name, cand.Locator, freshFP, false)
		r.log.Info("Healed locator via candidate strategy",
			zap.String("name", name),
			zap.String("strategy", string(cand.Strategy)),
			zap.String("locator", cand.Locator.String()),
		)
		return &schemas.Resolution{
			LogicalName: name,
			Handle:      handle,
			Locator:     cand.Locator,
			Stage:       schemas.StageTryCandidates,
			Strategy:    cand.Strategy,
		}, nil
	}
	return nil, nil
}

// scanResult pairs a scanned element with its score; kept in a fixed slice so
// the reduction is deterministic regardless of extraction order.
type scanResult struct {
	fp    *schemas.Fingerprint
	score float64
	ok    bool
}

// globalScan fingerprints every element in the document and accepts the
// best-scoring one if it strictly exceeds the threshold. Extraction and
// scoring are read-only, so they fan out across a bounded worker group; the
// max reduction is a single pass with first-in-document-order tie-break.
func (r *Resolver) globalScan(ctx context.Context, name string, reference *schemas.Fingerprint) (*schemas.Resolution, error) {
	handles, err := r.dom.AllElements(ctx)
	if err != nil {
		return nil, &schemas.NotFoundError{LogicalName: name, Stage: schemas.StageGlobalScan, Err: err}
	}

	results := make([]scanResult, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ScanParallelism)
	for i, h := range handles {
		g.Go(func() error {
			fp, err := Extract(gctx, h)
			if err != nil {
				// A single node's extraction error never aborts the scan.
				return nil
			}
			results[i] = scanResult{fp: fp, score: r.scorer.Score(reference, fp), ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	best := -1
	bestScore := 0.0
	for i, res := range results {
		if res.ok && res.score > bestScore {
			best, bestScore = i, res.score
		}
	}

	if best < 0 || bestScore <= r.cfg.Threshold {
		r.log.Debug("Global scan found no acceptable match",
			zap.String("name", name),
			zap.Float64("best_score", bestScore),
			zap.Float64("threshold", r.cfg.Threshold),
		)
		return nil, nil
	}

	handle := handles[best]
	freshFP := results[best].fp
	locator := r.rebindLocator(ctx, freshFP)
	r.memory.Update(name, locator, freshFP, false)
	r.log.Info("Healed locator via similarity scan",
		zap.String("name", name),
		zap.Float64("score", bestScore),
		zap.String("locator", locator.String()),
	)
	return &schemas.Resolution{
		LogicalName: name,
		Handle:      handle,
		Locator:     locator,
		Stage:       schemas.StageGlobalScan,
		Score:       bestScore,
	}, nil
}

// rebindLocator derives a fresh locator for a scan-matched element so the
// memory invariant holds: the stored last-known-good locator must resolve to
// exactly one element in the current DOM. It picks the first generated
// candidate that does, falling back to the hierarchical path, which is unique
// by construction.
func (r *Resolver) rebindLocator(ctx context.Context, fp *schemas.Fingerprint) schemas.Locator {
	for _, cand := range Generate("", fp) {
		if _, err := r.findUnique(ctx, cand.Locator); err == nil {
			return cand.Locator
		}
	}
	return schemas.Locator{
		Language: schemas.QueryXPath,
		Value:    fp.DerivedPaths[schemas.StrategyHierarchical],
	}
}

// askOracle performs the single external-suggestion attempt. Any oracle
// failure, malformed response, or non-resolving suggestion terminates the
// resolution; there is no fallback beyond the oracle.
func (r *Resolver) askOracle(ctx context.Context, name string, entry *schemas.MemoryEntry) (*schemas.Resolution, error) {
	req := schemas.SuggestionRequest{
		LogicalName:  name,
		ErrorContext: fmt.Sprintf("element %q could not be resolved by any deterministic strategy", name),
	}
	if entry != nil {
		req.FailingLocator = entry.LastKnownGood
	}
	if snapshot, err := r.dom.Snapshot(ctx); err == nil {
		if r.cfg.SnapshotLimit > 0 && len(snapshot) > r.cfg.SnapshotLimit {
			snapshot = snapshot[:r.cfg.SnapshotLimit]
		}
		req.DOMSnapshot = snapshot
	}

	suggestion, err := r.oracle.Suggest(ctx, req)
	if err != nil {
		r.log.Warn("Suggestion oracle failed", zap.String("name", name), zap.Error(err))
		return nil, &schemas.NotFoundError{LogicalName: name, Stage: schemas.StageExternalSuggestion, Err: err}
	}

	handle, err := r.findUnique(ctx, suggestion)
	if err != nil {
		r.log.Warn("Oracle suggestion did not resolve",
			zap.String("name", name),
			zap.String("locator", suggestion.String()),
			zap.Error(err),
		)
		return nil, &schemas.NotFoundError{LogicalName: name, Stage: schemas.StageExternalSuggestion, Err: err}
	}

	freshFP, err := Extract(ctx, handle)
	if err != nil {
		return nil, &schemas.NotFoundError{LogicalName: name, Stage: schemas.StageExternalSuggestion, Err: err}
	}

	r.memory.Update(name, suggestion, freshFP, true)
	r.log.Info("Healed locator via oracle suggestion; flagging for review",
		zap.String("name", name),
		zap.String("locator", suggestion.String()),
	)
	return &schemas.Resolution{
		LogicalName:       name,
		Handle:            handle,
		Locator:           suggestion,
		Stage:             schemas.StageExternalSuggestion,
		Strategy:          schemas.StrategyOracle,
		ExternallySourced: true,
	}, nil
}

// findUnique resolves a locator and insists on exactly one live match.
func (r *Resolver) findUnique(ctx context.Context, loc schemas.Locator) (schemas.ElementHandle, error) {
	if loc.IsZero() {
		return nil, schemas.ErrElementNotFound
	}
	handles, err := r.dom.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	switch len(handles) {
	case 0:
		return nil, schemas.ErrElementNotFound
	case 1:
		return handles[0], nil
	default:
		return nil, &schemas.AmbiguousMatchError{Locator: loc, Count: len(handles)}
	}
}
