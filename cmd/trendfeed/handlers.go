package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"trendfeed/internal/cache"
	"trendfeed/internal/config"
	"trendfeed/internal/health"
	"trendfeed/internal/logging"
	"trendfeed/internal/refresh"
	"trendfeed/internal/scheduler"
	"trendfeed/internal/store"
	"trendfeed/pkg/adapter"
	"trendfeed/pkg/alert"
	"trendfeed/pkg/content"
	"trendfeed/pkg/scoring"
	"trendfeed/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("TRENDFEED_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildAdapters(cfg *config.Config) *adapter.Registry {
	return adapter.NewRegistry(adapter.Options{
		GitHubToken:        cfg.Credentials.GitHubToken,
		RedditClientID:     cfg.Credentials.RedditClientID,
		RedditClientSecret: cfg.Credentials.RedditClientSecret,
		HackerNewsLimit:    cfg.Refresh.HackerNewsLimit,
	})
}

func buildEngine(cfg *config.Config) *scoring.Engine {
	return scoring.NewEngine(scoring.Config{
		Weights: scoring.Weights{
			Priority:   cfg.Scoring.Weights.Priority,
			Engagement: cfg.Scoring.Weights.Engagement,
			Recency:    cfg.Scoring.Weights.Recency,
			Keyword:    cfg.Scoring.Weights.Keyword,
		},
		RecencyHalfLife:   cfg.Scoring.ParseRecencyHalfLife(),
		UsePercentiles:    cfg.Scoring.UsePercentiles,
		CategoryRebalance: cfg.Scoring.CategoryRebalance,
	})
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func newCoordinator(cfg *config.Config, db *store.SQLStore, recorder refresh.HealthRecorder, log *slog.Logger) *refresh.Coordinator {
	return refresh.NewCoordinator(db, buildAdapters(cfg), recorder,
		refresh.NewSessionTracker(0),
		refresh.Config{
			Staleness:    cfg.Refresh.ParseStaleness(),
			FetchTimeout: cfg.Refresh.ParseFetchTimeout(),
		},
		log)
}

// discardRecorder drops health outcomes. One-shot commands have no
// consumer loop, so queueing outcomes would only lose them at exit.
type discardRecorder struct{}

func (discardRecorder) Record(health.Outcome) {}

func runRefresh(sourceIDs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Logging.Level)

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sources, err := pickSources(cfg.Sources, sourceIDs)
	if err != nil {
		return err
	}

	coord := newCoordinator(cfg, db, discardRecorder{}, log)
	res, err := coord.Refresh(context.Background(), sources, content.RangeDay)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.SourceID, f.Error)
	}
	fmt.Fprintf(os.Stderr, "refreshed %d of %d sources, %d items served\n",
		len(res.Refreshed), len(sources), len(res.Items))
	return nil
}

func runFeed(modeArg, categoryArg, rangeArg string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Logging.Level)

	mode := content.ModeTrending
	if modeArg != string(content.ModeTrending) {
		if mode, err = content.ParseFeedMode(modeArg); err != nil {
			return err
		}
	}
	rng, err := content.ParseTimeRange(rangeArg)
	if err != nil {
		return err
	}
	var cat content.Category
	if categoryArg != "" {
		if cat, err = content.ParseCategory(categoryArg); err != nil {
			return err
		}
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	overrides, err := db.SourceOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load source overrides: %w", err)
	}

	var sources []content.SourceConfig
	priorities := make(map[string]int)
	for _, src := range cfg.Sources {
		if cat != "" && src.Category != cat {
			continue
		}
		enabled := true
		priority := src.Priority
		if ov, ok := overrides[src.ID]; ok {
			enabled = ov.Enabled
			if ov.Priority > 0 {
				priority = ov.Priority
			}
		}
		if !enabled {
			continue
		}
		sources = append(sources, src)
		priorities[src.ID] = priority
	}

	coord := newCoordinator(cfg, db, discardRecorder{}, log)
	res, err := coord.Refresh(ctx, sources, rng)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.SourceID, f.Error)
	}

	srcMap := make(map[string]content.SourceConfig, len(sources))
	for _, src := range sources {
		srcMap[src.ID] = src
	}

	keywords := cfg.Keywords
	if stored, err := db.BoostKeywords(ctx); err == nil && stored != nil {
		keywords = stored
	}

	input := scoring.Input{
		Sources:    srcMap,
		Priorities: priorities,
		Keywords:   keywords,
		Velocities: itemVelocities(ctx, db, res.Items, log),
	}
	ranked := buildEngine(cfg).RankMode(res.Items, mode, input)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	}

	if len(ranked) == 0 {
		fmt.Println("no items (try refreshing first: trendfeed refresh)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSOURCE\tTITLE\tPUBLISHED")
	for _, it := range ranked {
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\n",
			it.TrendingScore, it.SourceID, it.Title,
			it.PublishedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func itemVelocities(ctx context.Context, db *store.SQLStore, items []content.Item, log *slog.Logger) map[string]float64 {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	series, err := db.SnapshotsSince(ctx, ids, time.Now().UTC().Add(-6*time.Hour))
	if err != nil {
		log.Warn("load engagement snapshots", "error", err)
		return nil
	}
	velocities := make(map[string]float64, len(series))
	for id, snaps := range series {
		velocities[id] = scoring.VelocityFromSnapshots(snaps)
	}
	return velocities
}

func pickSources(all []content.SourceConfig, ids []string) ([]content.SourceConfig, error) {
	if len(ids) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[strings.ToLower(strings.TrimSpace(id))] = true
	}
	var out []content.SourceConfig
	for _, src := range all {
		if wanted[strings.ToLower(src.ID)] {
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no matching sources for: %s", strings.Join(ids, ", "))
	}
	return out, nil
}

// service holds the wired daemon components.
type service struct {
	cfg     *config.Config
	db      *store.SQLStore
	tracker *health.Tracker
	results *cache.Cache
	sched   *scheduler.Scheduler
	srv     *server.Server
	log     *slog.Logger
}

func buildService(cfg *config.Config, log *slog.Logger) (*service, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker := health.NewTracker(db, buildAlertManager(cfg), cfg.Health.FailureThreshold, log)
	results := cache.New(cfg.Cache.ParseTTL(), cfg.Cache.MaxEntries, log)
	coord := newCoordinator(cfg, db, tracker, log)

	srv := server.New(db, coord, buildEngine(cfg), results, server.Options{
		Port:     cfg.Server.Port,
		Sources:  cfg.Sources,
		Keywords: cfg.Keywords,
	}, log)

	sched := scheduler.New(db, coord, cfg.Sources, cfg.Refresh.ParseInterval(), log)

	return &service{
		cfg:     cfg,
		db:      db,
		tracker: tracker,
		results: results,
		sched:   sched,
		srv:     srv,
		log:     log,
	}, nil
}

// start launches the background loops. They all stop with ctx.
func (s *service) start(ctx context.Context, withScheduler bool) {
	if err := s.tracker.Load(ctx); err != nil {
		s.log.Warn("hydrate source health", "error", err)
	}
	go s.tracker.Run(ctx)
	go s.results.Run(ctx, s.cfg.Cache.ParseSweepInterval())

	if withScheduler {
		go func() {
			if err := s.sched.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("scheduler stopped", "error", err)
			}
		}()
	}
}

// serve runs the HTTP server until an error or a shutdown signal.
func (s *service) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
		return nil
	case err := <-errCh:
		return err
	}
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	log := logging.New(cfg.Logging.Level)

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc.start(ctx, false)
	return svc.serve(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	log := logging.New(cfg.Logging.Level)

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc.start(ctx, true)
	return svc.serve(ctx)
}
