package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppiankov/thumbsieve/internal/cache"
	"github.com/ppiankov/thumbsieve/internal/classify"
	"github.com/ppiankov/thumbsieve/internal/export"
	"github.com/ppiankov/thumbsieve/internal/logging"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"github.com/ppiankov/thumbsieve/internal/source"
	"github.com/ppiankov/thumbsieve/internal/store"
	"github.com/ppiankov/thumbsieve/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// memoryCacheTTL bounds the in-process layer of the verdict cache
const memoryCacheTTL = time.Hour

var (
	htmlSnapshot string
	sourcePage   string
	headful      bool
	maxScrolls   int
	noCache      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [page-url | candidates-file]",
	Short: "Scan thumbnails and keep only new watch designs",
	Long: `Run collects candidate thumbnails and passes each through the dedup gates.

Candidates come from one of:
- a Douyin page URL (loaded in headless Chrome and scrolled)
- a candidates file: .json, .csv or one URL per line
- a saved page snapshot (--html page.html --source-page <url>)
- an interactive prompt when no argument is given

The fingerprint database is saved only when the run completes.

Example:
  thumbsieve run https://www.douyin.com/user/MS4wLjABAAAA...
  thumbsieve run videos.json --concurrency 20 --classifier-rps 5
  thumbsieve run --html page.html --source-page https://www.douyin.com/user/x
  thumbsieve run urls.txt --classifier-provider openai --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()

	// Source flags
	f.StringVar(&htmlSnapshot, "html", "", "read candidates from a saved page snapshot")
	f.StringVar(&sourcePage, "source-page", "", "page URL recorded in the export (and base URL for --html)")
	f.BoolVar(&headful, "headful", false, "show the browser window (to solve a CAPTCHA)")
	f.IntVar(&maxScrolls, "scrolls", 200, "maximum scroll passes on a live page")

	// Run flags, bound to config keys
	f.String("store", "", "fingerprint database path")
	f.Int("concurrency", worker.DefaultWorkers, "number of items processed in parallel")
	f.Duration("item-timeout", worker.DefaultItemTimeout, "time limit per item")
	f.String("classifier-provider", "", "vision model provider (gemini, openai, anthropic, ollama)")
	f.String("classifier-model", "", "vision model name (default depends on provider)")
	f.Float64("classifier-rps", 0, "classifier requests per second (0 = unlimited)")
	f.Int("classifier-max-concurrent", 0, "classifier calls in flight (0 = unlimited)")
	f.Int("max-attempts", classify.DefaultMaxAttempts, "calls per question when rate limited")
	f.Float64("host-rps", 0, "thumbnail downloads per second per host (0 = unlimited)")
	f.Bool("respect-robots", false, "honour robots.txt on thumbnail hosts")
	f.String("output-dir", "", "directory for the export file")
	f.String("format", "", "export format (csv, json)")
	f.Bool("backup", false, "upload unique thumbnails to S3-compatible storage")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address during the run")
	f.BoolVar(&noCache, "no-cache", false, "disable the classifier verdict cache")
	f.String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	f.String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	bindFlags(runCmd, map[string]string{
		"store":                     "store.path",
		"concurrency":               "concurrency.workers",
		"item-timeout":              "concurrency.item_timeout",
		"classifier-provider":       "classifier.provider",
		"classifier-model":          "classifier.model",
		"classifier-rps":            "classifier.rps",
		"classifier-max-concurrent": "classifier.max_concurrent",
		"max-attempts":              "classifier.max_attempts",
		"host-rps":                  "http.host_rps",
		"respect-robots":            "http.respect_robots",
		"output-dir":                "output.dir",
		"format":                    "output.format",
		"backup":                    "backup.enabled",
		"metrics-addr":              "metrics.addr",
		"http-proxy":                "http.http_proxy",
		"https-proxy":               "http.https_proxy",
	})
}

// bindFlags binds each flag to a viper key; unchanged flags fall through to
// env, config file and defaults
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Output.Verbose, cfg.Output.LogJSON)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load the database first: a corrupt file must stop the run before any
	// scraping or model quota is spent
	st, err := store.Load(cfg.Store.Path, logger)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return fmt.Errorf("refusing to run with an unreadable fingerprint database (fix or move %s): %w", cfg.Store.Path, err)
		}
		return err
	}

	items, page, err := collectCandidates(ctx, args, logger)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no candidate thumbnails found")
	}

	hashes, fingerprints := st.Len()
	printBanner(os.Stderr, cfg, page, len(items), hashes, fingerprints)

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	classifier, closeClassifier, err := buildClassifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeClassifier()

	limiter := worker.NewLimiter(cfg.HTTP.HostRPS, cfg.HTTP.HostBurst)
	fetcher := pipeline.NewFetcher(cfg.HTTP).WithLimiter(limiter)

	p := pipeline.New(fetcher, classifier, m, logger)
	sched := worker.NewScheduler(p, st, worker.SchedulerConfig{
		Workers:     cfg.Concurrency.Workers,
		ItemTimeout: cfg.Concurrency.ItemTimeout,
		Metrics:     m,
		Logger:      logger,
		OnResult:    progressPrinter(os.Stderr),
	})

	report, runErr := sched.Run(ctx, items)
	printSummary(os.Stderr, report)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Run interrupted; the database was not saved.\n")
		return runErr
	}

	if st.Modified() {
		if err := st.Save(); err != nil {
			return fmt.Errorf("save database: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Saved database: %s\n", st.Path())
	}

	if cfg.Backup.Enabled && len(report.Unique) > 0 {
		backupRecords(ctx, cfg, fetcher, m, logger, report.Unique)
	}

	path, err := export.Save(cfg.Output.Dir, cfg.Output.BaseName, format, report.Unique, export.Meta{
		SourcePage: page,
		RunID:      report.RunID,
		Date:       report.FinishedAt,
		WithBackup: cfg.Backup.Enabled,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if path != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote %d unique watches: %s\n", len(report.Unique), path)
	} else {
		fmt.Fprintf(os.Stderr, "No new watches found; nothing exported.\n")
	}

	return nil
}

// collectCandidates picks the candidate source from the arguments and flags.
// It returns the items and the page they came from.
func collectCandidates(ctx context.Context, args []string, logger *zap.Logger) ([]model.CandidateItem, string, error) {
	if htmlSnapshot != "" {
		data, err := os.ReadFile(htmlSnapshot)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read snapshot: %w", err)
		}
		page := sourcePage
		if page == "" {
			page = "https://www.douyin.com/"
		}
		items, err := source.FromHTML(string(data), page)
		return items, page, err
	}

	var target string
	if len(args) == 1 {
		target = args[0]
	} else {
		prompter, err := source.NewPrompter()
		if err != nil {
			return nil, "", err
		}
		defer prompter.Close()
		if target, err = prompter.AskURL(); err != nil {
			return nil, "", err
		}
	}

	if !isPageURL(target) {
		items, err := source.FromFile(target)
		if err != nil {
			return nil, "", err
		}
		return items, firstNonEmpty(sourcePage, target), nil
	}

	page, err := source.ParsePageURL(target)
	if err != nil {
		return nil, "", err
	}

	live := source.NewLivePage(logger)
	live.MaxScrolls = maxScrolls
	live.Headless = !headful
	if headful {
		live.Ready = waitForUser
	}

	fmt.Fprintf(os.Stderr, "⚙️  Loading %s ...\n", page)
	items, err := live.Fetch(ctx, page)
	if err != nil {
		return nil, "", err
	}
	return items, page, nil
}

// waitForUser pauses after navigation so a CAPTCHA can be solved by hand
func waitForUser(ctx context.Context) error {
	prompter, err := source.NewPrompter()
	if err != nil {
		return err
	}
	defer prompter.Close()
	return prompter.WaitEnter("If you see a CAPTCHA, complete it now. Press ENTER to start collecting videos...")
}

func isPageURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "www.")
}

// buildClassifier wires provider -> rate/concurrency limit -> retry -> verdict cache
func buildClassifier(ctx context.Context, cfg *model.Config, logger *zap.Logger) (classify.Classifier, func(), error) {
	gen, err := classify.NewProvider(ctx, classify.ConfigFromModel(cfg.Classifier, cfg.HTTP))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	closeFn := func() {
		if c, ok := gen.(io.Closer); ok {
			_ = c.Close()
		}
	}

	var c classify.Classifier = classify.New(gen)
	c = classify.NewLimited(c, cfg.Classifier.MaxConcurrent, cfg.Classifier.RPS)
	c = classify.NewRetrying(c, cfg.Classifier.MaxAttempts, cfg.Classifier.BaseDelay,
		classify.WithRetryLogger(logger))

	if cfg.Cache.Enabled {
		verdicts := cache.NewLayeredCache(memoryCacheTTL, cfg.Cache.Dir, cfg.Cache.TTL)
		c = classify.NewCached(c, verdicts, gen.Name(), cfg.Cache.TTL, logger)
	}

	logger.Debug("classifier ready", zap.String("backend", gen.Name()))
	return c, closeFn, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
