// File: cmd/resolve.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relock/api/schemas"
	"github.com/xkilldash9x/relock/internal/dom"
	cdpdom "github.com/xkilldash9x/relock/internal/dom/cdp"
	"github.com/xkilldash9x/relock/internal/healing"
	"github.com/xkilldash9x/relock/internal/llmclient"
	"github.com/xkilldash9x/relock/internal/observability"
	"github.com/xkilldash9x/relock/internal/oracle"
	"github.com/xkilldash9x/relock/internal/store"
)

var (
	resolveName     string
	resolveLocator  string
	resolveLang     string
	resolveBaseline string
	resolveChanged  string
	resolveURL      string
	resolveMemory   string
	resolveOracle   bool
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Learn a named element and resolve it against a changed document.",
		Long: `Learn a named element from a baseline HTML fixture (or live URL), then
resolve it against a changed fixture (or the current page), healing the
locator if the DOM has drifted. Prints the stage that resolved it, the
healed locator, and the similarity score when the global scan was used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&resolveName, "name", "n", "", "logical element name")
	cmd.Flags().StringVarP(&resolveLocator, "locator", "l", "", "original locator to learn from")
	cmd.Flags().StringVar(&resolveLang, "lang", "css", "locator language: css or xpath")
	cmd.Flags().StringVar(&resolveBaseline, "baseline", "", "baseline HTML fixture to learn from")
	cmd.Flags().StringVar(&resolveChanged, "changed", "", "changed HTML fixture to resolve against")
	cmd.Flags().StringVar(&resolveURL, "url", "", "live page URL (instead of fixtures)")
	cmd.Flags().StringVar(&resolveMemory, "memory", "", "session ID for memory persistence ('new' generates one)")
	cmd.Flags().BoolVar(&resolveOracle, "oracle", false, "enable the LLM suggestion fallback")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runResolve(ctx context.Context, out io.Writer) error {
	logger := observability.GetLogger()

	loc, err := parseLocatorFlag(resolveLocator, resolveLang)
	if err != nil {
		return err
	}

	memory := healing.NewMemory()
	sessionID, memStore, err := setupMemory(ctx, memory, logger)
	if err != nil {
		return err
	}

	var suggester schemas.SuggestionOracle
	if resolveOracle {
		llm, err := llmclient.NewClient(cfg.Agent, logger)
		if err != nil {
			return fmt.Errorf("oracle requested but LLM client unavailable: %w", err)
		}
		suggester = oracle.New(cfg.Oracle, llm, logger)
	}

	var res *schemas.Resolution
	if resolveURL != "" {
		res, err = resolveLive(ctx, memory, suggester, loc, logger)
	} else {
		res, err = resolveFixtures(ctx, memory, suggester, loc, logger)
	}
	if err != nil {
		return err
	}

	if memStore != nil {
		if saveErr := memStore.SaveSnapshot(ctx, sessionID, memory.Entries()); saveErr != nil {
			logger.Warn("Failed to persist memory snapshot", zap.Error(saveErr))
		} else {
			fmt.Fprintf(out, "session: %s\n", sessionID)
		}
	}

	fmt.Fprintf(out, "stage:   %s\n", res.Stage)
	if res.Strategy != "" {
		fmt.Fprintf(out, "strategy: %s\n", res.Strategy)
	}
	fmt.Fprintf(out, "locator: %s\n", res.Locator)
	if res.Stage == schemas.StageGlobalScan {
		fmt.Fprintf(out, "score:   %.3f\n", res.Score)
	}
	if res.ExternallySourced {
		fmt.Fprintln(out, "note:    locator was externally sourced; review before trusting")
	}
	return nil
}

// resolveFixtures learns from the baseline document and resolves against the
// changed one, sharing one element memory across both.
func resolveFixtures(ctx context.Context, memory schemas.ElementMemory, suggester schemas.SuggestionOracle, loc schemas.Locator, logger *zap.Logger) (*schemas.Resolution, error) {
	resolverCfg := resolverConfigFromApp()
	scorer := scorerFromApp()

	if resolveBaseline != "" {
		if loc.IsZero() {
			return nil, fmt.Errorf("--locator is required when learning from a baseline fixture")
		}
		baselineDoc, err := parseFixture(resolveBaseline)
		if err != nil {
			return nil, err
		}
		learner := healing.NewResolver(baselineDoc, memory, nil, scorer, logger, resolverCfg)
		if _, err := learner.Learn(ctx, resolveName, loc); err != nil {
			return nil, err
		}
	}

	target := resolveChanged
	if target == "" {
		target = resolveBaseline
	}
	if target == "" {
		return nil, fmt.Errorf("one of --baseline, --changed or --url is required")
	}
	changedDoc, err := parseFixture(target)
	if err != nil {
		return nil, err
	}
	resolver := healing.NewResolver(changedDoc, memory, suggester, scorer, logger, resolverCfg)
	return resolver.Resolve(ctx, resolveName)
}

// resolveLive joins a fresh browser, navigates to the URL, and runs learn (if
// a locator was provided) plus resolve against the live page.
func resolveLive(ctx context.Context, memory schemas.ElementMemory, suggester schemas.SuggestionOracle, loc schemas.Locator, logger *zap.Logger) (*schemas.Resolution, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx := browserCtx
	if cfg.Browser.NavigationTimeout > 0 {
		var cancelNav context.CancelFunc
		navCtx, cancelNav = context.WithTimeout(browserCtx, cfg.Browser.NavigationTimeout)
		defer cancelNav()
	}
	if err := chromedp.Run(navCtx, chromedp.Navigate(resolveURL)); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", resolveURL, err)
	}

	session := cdpdom.NewSession(logger)
	resolver := healing.NewResolver(session, memory, suggester, scorerFromApp(), logger, resolverConfigFromApp())

	if !loc.IsZero() {
		if _, err := resolver.Learn(browserCtx, resolveName, loc); err != nil {
			return nil, err
		}
	}
	return resolver.Resolve(browserCtx, resolveName)
}

// setupMemory wires the configured store backend and restores a prior
// snapshot when a session ID was given. Returns a nil store when persistence
// is disabled.
func setupMemory(ctx context.Context, memory schemas.ElementMemory, logger *zap.Logger) (string, schemas.MemoryStore, error) {
	if resolveMemory == "" {
		return "", nil, nil
	}

	var memStore schemas.MemoryStore
	switch cfg.Store.Backend {
	case "file", "":
		fs, err := store.NewFileStore(cfg.Store.Path, logger)
		if err != nil {
			return "", nil, err
		}
		memStore = fs
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return "", nil, fmt.Errorf("store backend postgres requires store.database_url")
		}
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return "", nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		ps, err := store.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return "", nil, err
		}
		memStore = ps
	default:
		return "", nil, fmt.Errorf("unsupported store backend for CLI use: %s", cfg.Store.Backend)
	}

	sessionID := resolveMemory
	if strings.EqualFold(sessionID, "new") {
		sessionID = uuid.NewString()
		return sessionID, memStore, nil
	}

	entries, err := memStore.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load memory snapshot: %w", err)
	}
	memory.Restore(entries)
	logger.Info("Restored memory snapshot",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(entries)),
	)
	return sessionID, memStore, nil
}

func parseFixture(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture %s: %w", path, err)
	}
	defer f.Close()
	doc, err := dom.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return doc, nil
}

func parseLocatorFlag(value, lang string) (schemas.Locator, error) {
	if value == "" {
		return schemas.Locator{}, nil
	}
	switch schemas.QueryLanguage(lang) {
	case schemas.QueryCSS, schemas.QueryXPath:
		return schemas.Locator{Language: schemas.QueryLanguage(lang), Value: value}, nil
	default:
		return schemas.Locator{}, fmt.Errorf("unknown locator language %q (want css or xpath)", lang)
	}
}

func resolverConfigFromApp() healing.Config {
	return healing.Config{
		Threshold:       cfg.Resolver.EffectiveThreshold(),
		ScanParallelism: cfg.Resolver.ScanParallelism,
		SnapshotLimit:   cfg.Oracle.SnapshotLimit,
	}
}

func scorerFromApp() *healing.Scorer {
	if cfg.Resolver.AncestorScoring {
		return healing.NewAncestorScorer()
	}
	return healing.NewScorer()
}

func init() {
	rootCmd.AddCommand(newResolveCmd())
}
