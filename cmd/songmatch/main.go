// Command songmatch runs the text-to-song matching engine: it loads the song
// catalog and phrase lexicon, wires the embedding backends, and matches chat
// messages from the command line or stdin to songs.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyricroom/songmatch/internal/config"
	"github.com/lyricroom/songmatch/internal/health"
	"github.com/lyricroom/songmatch/internal/lexicon"
	"github.com/lyricroom/songmatch/internal/match"
	"github.com/lyricroom/songmatch/internal/moderation"
	"github.com/lyricroom/songmatch/internal/observe"
	"github.com/lyricroom/songmatch/internal/resilience"
	"github.com/lyricroom/songmatch/internal/semantic"
	"github.com/lyricroom/songmatch/pkg/catalog"
	catalogmock "github.com/lyricroom/songmatch/pkg/catalog/mock"
	catalogpg "github.com/lyricroom/songmatch/pkg/catalog/postgres"
	"github.com/lyricroom/songmatch/pkg/provider/embeddings"
	ollamaembed "github.com/lyricroom/songmatch/pkg/provider/embeddings/ollama"
	oaembed "github.com/lyricroom/songmatch/pkg/provider/embeddings/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	query := flag.String("query", "", "match a single message and exit; empty reads messages from stdin")
	allowExplicit := flag.Bool("allow-explicit", false, "permit explicit-tagged songs in results")
	migrate := flag.Bool("migrate", false, "create the catalog schema and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "songmatch: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "songmatch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("songmatch starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Embedding backends ────────────────────────────────────────────────────
	provider, err := buildEmbeddings(cfg)
	if err != nil {
		slog.Error("failed to build embedding backends", "err", err)
		return 1
	}

	// ── Catalog store ─────────────────────────────────────────────────────────
	dims := cfg.Catalog.EmbeddingDimensions
	if dims == 0 {
		dims = provider.Dimensions()
	}

	var store catalog.Store
	if cfg.Catalog.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Catalog.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()

		pg := catalogpg.New(pool, dims)
		if *migrate {
			if err := pg.Migrate(ctx); err != nil {
				slog.Error("migration failed", "err", err)
				return 1
			}
			slog.Info("catalog schema migrated", "dimensions", dims)
			return 0
		}
		store = pg
	} else {
		if *migrate {
			slog.Error("catalog.postgres_dsn is required for -migrate")
			return 1
		}
		slog.Warn("no postgres_dsn configured; using an empty in-memory catalog")
		store = catalogmock.New()
	}

	// ── Phrase lexicon ────────────────────────────────────────────────────────
	var lex *lexicon.Index
	if cfg.Lexicon.Path != "" {
		lex, err = lexicon.Load(cfg.Lexicon.Path)
		if err != nil {
			slog.Error("failed to load phrase lexicon", "path", cfg.Lexicon.Path, "err", err)
			return 1
		}
		slog.Info("phrase lexicon loaded", "path", cfg.Lexicon.Path, "phrases", lex.Len())
	} else {
		slog.Warn("lexicon.path is empty; phrase matching is disabled")
		lex = lexicon.New(nil)
	}
	observe.DefaultMetrics().LexiconPhrases.Add(ctx, int64(lex.Len()))

	// ── Matching pipeline ─────────────────────────────────────────────────────
	searcher := semantic.New(provider, store,
		semantic.WithTopK(cfg.Matching.TopK),
		semantic.WithRerank(cfg.Matching.Rerank),
		semantic.WithAboutness(semantic.AboutnessConfig{
			Enabled:         cfg.Matching.Aboutness.Enabled,
			MetaWeight:      cfg.Matching.Aboutness.MetaWeight,
			AboutnessWeight: cfg.Matching.Aboutness.AboutnessWeight,
		}),
	)

	orchestrator := match.NewOrchestrator(lex, searcher, store, match.Config{
		FallbackLimit:      cfg.Matching.FallbackLimit,
		RecencyFloor:       cfg.Matching.RecencyFloor,
		DiversityThreshold: cfg.Matching.Diversity.Threshold,
		MaxAlternates:      cfg.Matching.Diversity.MaxAlternates,
		Calibrator:         buildCalibrator(cfg.Matching.Calibration),
	}, nil)

	service := match.NewService(orchestrator, buildModerator(cfg.Moderation), nil)

	// ── Admin endpoint (metrics + health probes) ──────────────────────────────
	if cfg.Server.ListenAddr != "" {
		checkers := []health.Checker{health.CatalogChecker(store)}
		if cfg.Providers.Embeddings.Name != "" {
			checkers = append(checkers, health.EmbeddingsChecker(provider))
		}

		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(checkers...).Register(mux)

		srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
		go func() {
			slog.Info("admin endpoint listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin endpoint error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("admin endpoint shutdown error", "err", err)
			}
		}()
	}

	// ── Match loop ────────────────────────────────────────────────────────────
	if *query != "" {
		return matchOne(ctx, service, *query, *allowExplicit)
	}
	return matchLoop(ctx, service, *allowExplicit)
}

// matchOne matches a single message and prints the response as JSON.
func matchOne(ctx context.Context, service *match.Service, text string, allowExplicit bool) int {
	resp, err := service.Match(ctx, match.Request{
		Text:          text,
		AllowExplicit: allowExplicit,
	})
	if err != nil {
		slog.Error("match failed", "err", err)
		return 1
	}
	printResponse(resp)
	return 0
}

// matchLoop reads one message per line from stdin until EOF or signal.
func matchLoop(ctx context.Context, service *match.Service, allowExplicit bool) int {
	slog.Info("reading messages from stdin — one per line, Ctrl+D to exit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping")
			return 0
		case line, ok := <-lines:
			if !ok {
				return 0
			}
			if line == "" {
				continue
			}
			resp, err := service.Match(ctx, match.Request{
				Text:          line,
				AllowExplicit: allowExplicit,
			})
			if err != nil {
				slog.Error("match failed", "err", err)
				continue
			}
			printResponse(resp)
		}
	}
}

// printResponse writes the match response to stdout as indented JSON.
func printResponse(resp *match.Response) {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		slog.Error("failed to encode response", "err", err)
		return
	}
	fmt.Println(string(out))
}

// ── Wiring helpers ──────────────────────────────────────────────────────────

// buildEmbeddings constructs the embedding backend chain from the config:
// the primary backend wrapped in a circuit-breaking failover, with any
// configured fallbacks appended in order.
func buildEmbeddings(cfg *config.Config) (embeddings.Provider, error) {
	if cfg.Providers.Embeddings.Name == "" {
		return disabledEmbeddings{}, nil
	}

	primary, err := buildBackend(cfg.Providers.Embeddings, cfg.Catalog.EmbeddingDimensions)
	if err != nil {
		return nil, fmt.Errorf("primary %q: %w", cfg.Providers.Embeddings.Name, err)
	}
	slog.Info("embedding backend created",
		"name", cfg.Providers.Embeddings.Name,
		"model", primary.ModelID(),
		"fallbacks", len(cfg.Providers.EmbeddingsFallbacks),
	)

	if len(cfg.Providers.EmbeddingsFallbacks) == 0 {
		return primary, nil
	}

	failover := resilience.NewFailover(primary, cfg.Providers.Embeddings.Name, resilience.CircuitBreakerConfig{}, nil)
	for i, entry := range cfg.Providers.EmbeddingsFallbacks {
		backend, err := buildBackend(entry, cfg.Catalog.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("fallback[%d] %q: %w", i, entry.Name, err)
		}
		failover.AddFallback(entry.Name, backend)
	}
	return failover, nil
}

// buildBackend constructs one embedding backend from a provider entry. dims,
// when non-zero, pins the output dimension to the catalog's vector columns.
func buildBackend(entry config.ProviderEntry, dims int) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		var opts []ollamaembed.Option
		if dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", entry.Name)
	}
}

// buildCalibrator maps the calibration config onto a calibrator, keeping
// built-in defaults for unset fields.
func buildCalibrator(cfg config.CalibrationConfig) match.Calibrator {
	cal := match.NewCalibrator()
	if cfg.Scale > 0 {
		cal.Scale = cfg.Scale
	}
	if cfg.Min > 0 || cfg.Max > 0 {
		cal.Min = cfg.Min
		cal.Max = cfg.Max
	}
	if cfg.SingleCandidate > 0 {
		cal.SingleCandidate = cfg.SingleCandidate
	}
	return cal
}

// buildModerator constructs the moderation gate, or nil when moderation is
// off.
func buildModerator(cfg config.ModerationConfig) moderation.Moderator {
	switch cfg.Mode {
	case config.ModerationAllowAll:
		return moderation.AllowAll{}
	case config.ModerationBlocklist:
		return &moderation.Blocklist{
			Block:   cfg.Block,
			Replace: cfg.Replace,
		}
	default:
		return nil
	}
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// disabledEmbeddings stands in when no embedding backend is configured. Its
// errors are absorbed by the semantic searcher, so the pipeline degrades to
// lexicon and popularity matching.
type disabledEmbeddings struct{}

var _ embeddings.Provider = disabledEmbeddings{}

func (disabledEmbeddings) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("no embedding backend configured")
}

func (disabledEmbeddings) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("no embedding backend configured")
}

func (disabledEmbeddings) Dimensions() int { return 0 }

func (disabledEmbeddings) ModelID() string { return "disabled" }
