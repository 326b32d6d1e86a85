// internal/oracle/oracle.go

// Package oracle adapts an LLM client into the last-resort locator
// suggestion source. Responses are untrusted: everything coming back is
// validated and normalized before it reaches the resolver.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/relock/api/schemas"
	"github.com/xkilldash9x/relock/internal/config"
)

const systemPrompt = `You are an expert in web UI test automation. You locate elements in HTML documents.
Respond with EXACTLY one locator on a single line and nothing else.
If the locator is an XPath expression, it must start with "/" or "//".
Any other response is treated as a CSS selector.
Do not add markdown, code fences, quotes, or explanations.`

// Oracle implements schemas.SuggestionOracle on top of a tiered LLM client.
// Calls are rate limited and bounded by a per-call timeout; the oracle is a
// shared external service and a flaky suite must not be able to hammer it.
type Oracle struct {
	client  schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger

	snapshotLimit int
	timeout       config.OracleConfig
}

// New creates an oracle from the configuration and an LLM client.
func New(cfg config.OracleConfig, client schemas.LLMClient, logger *zap.Logger) *Oracle {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 6
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Oracle{
		client:        client,
		limiter:       rate.NewLimiter(rate.Limit(rpm/60.0), burst),
		logger:        logger.Named("oracle"),
		snapshotLimit: cfg.SnapshotLimit,
		timeout:       cfg,
	}
}

// Suggest asks the LLM for a replacement locator. Transport failures, rate
// limit waits cut short by the context, and unparseable responses all surface
// as *schemas.OracleError.
func (o *Oracle) Suggest(ctx context.Context, req schemas.SuggestionRequest) (schemas.Locator, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return schemas.Locator{}, &schemas.OracleError{Reason: "rate limit wait aborted", Err: err}
	}

	if o.timeout.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout.Timeout)
		defer cancel()
	}

	prompt := o.buildPrompt(req)
	o.logger.Debug("Requesting locator suggestion",
		zap.String("logical_name", req.LogicalName),
		zap.String("failing_locator", req.FailingLocator.String()),
	)

	raw, err := o.client.GenerateResponse(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: 0.1,
		},
	})
	if err != nil {
		return schemas.Locator{}, &schemas.OracleError{Reason: "generation failed", Err: err}
	}

	loc, err := ParseSuggestion(raw)
	if err != nil {
		o.logger.Warn("Discarding malformed oracle response",
			zap.String("logical_name", req.LogicalName),
			zap.Error(err),
		)
		return schemas.Locator{}, err
	}

	o.logger.Info("Oracle produced suggestion",
		zap.String("logical_name", req.LogicalName),
		zap.String("suggestion", loc.String()),
	)
	return loc, nil
}

func (o *Oracle) buildPrompt(req schemas.SuggestionRequest) string {
	snapshot := req.DOMSnapshot
	if o.snapshotLimit > 0 && len(snapshot) > o.snapshotLimit {
		snapshot = snapshot[:o.snapshotLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The element known as %q can no longer be found.\n", req.LogicalName)
	if !req.FailingLocator.IsZero() {
		fmt.Fprintf(&b, "The locator that stopped working was the %s locator: %s\n",
			req.FailingLocator.Language, req.FailingLocator.Value)
	}
	if req.ErrorContext != "" {
		fmt.Fprintf(&b, "Failure context: %s\n", req.ErrorContext)
	}
	b.WriteString("\nCurrent page HTML:\n")
	b.WriteString(snapshot)
	b.WriteString("\n\nProvide one locator for the element.")
	return b.String()
}

// ParseSuggestion normalizes and validates a raw LLM response into a single
// locator. Models wrap answers in code fences, quotes, and prose despite the
// pinned response format, so the parser strips that decoration before
// enforcing the single non-empty line contract.
func ParseSuggestion(raw string) (schemas.Locator, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return schemas.Locator{}, &schemas.OracleError{Reason: "empty response"}
	}

	text = stripCodeFence(text)
	text = strings.Trim(text, "`\"'")
	text = strings.TrimSpace(text)
	if text == "" {
		return schemas.Locator{}, &schemas.OracleError{Reason: "response contained only formatting"}
	}

	if strings.ContainsAny(text, "\r\n") {
		return schemas.Locator{}, &schemas.OracleError{
			Reason: fmt.Sprintf("expected a single line, got %d", 1+strings.Count(text, "\n")),
		}
	}

	lang := schemas.QueryCSS
	if strings.HasPrefix(text, "/") {
		lang = schemas.QueryXPath
	}
	return schemas.Locator{Language: lang, Value: text}, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	inner := strings.TrimPrefix(text, "```")
	if idx := strings.Index(inner, "\n"); idx >= 0 {
		// First line may carry a language tag like "xpath" or "css".
		inner = inner[idx+1:]
	}
	inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
	return strings.TrimSpace(inner)
}
