package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/thumbsieve/internal/backup"
	"github.com/ppiankov/thumbsieve/internal/export"
	"github.com/ppiankov/thumbsieve/internal/logging"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"github.com/ppiankov/thumbsieve/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup <export.csv>",
	Short: "Copy the thumbnails of an export to S3-compatible storage",
	Long: `Backup uploads every thumbnail listed in a CSV export and records the
permanent URL in its backup_thumbnail_url column. The file is rewritten in
place with its "#" header lines kept.

Rows that already have a backup URL are skipped, so an interrupted or
stopped backup can be resumed by running the command again.

Example:
  thumbsieve backup watch_sources.csv --bucket my-thumbs
  thumbsieve backup watch_sources1.csv --endpoint https://s3.example.com --public-base-url https://cdn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupExport,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	f := backupCmd.Flags()
	f.String("bucket", "", "destination bucket")
	f.String("prefix", "", "object key prefix")
	f.String("endpoint", "", "S3-compatible endpoint URL")
	f.String("public-base-url", "", "base URL recorded instead of s3://bucket/key")
	f.Int("attempts", backup.DefaultAttempts, "tries per thumbnail upload")

	bindFlags(backupCmd, map[string]string{
		"bucket":          "backup.bucket",
		"prefix":          "backup.prefix",
		"endpoint":        "backup.endpoint",
		"public-base-url": "backup.public_base_url",
		"attempts":        "backup.attempts",
	})
}

func runBackupExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Backup.Bucket == "" {
		return fmt.Errorf("no bucket configured (set backup.bucket, THUMBSIEVE_BACKUP_BUCKET or --bucket)")
	}

	logger, err := logging.New(cfg.Output.Verbose, cfg.Output.LogJSON)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := backup.NewS3Client(ctx, cfg.Backup)
	if err != nil {
		return err
	}
	fetcher := pipeline.NewFetcher(cfg.HTTP).WithLimiter(worker.NewLimiter(cfg.HTTP.HostRPS, cfg.HTTP.HostBurst))
	uploader := backup.New(client, fetcher, cfg.Backup, nil, logger)

	fmt.Fprintf(os.Stderr, "⚙️  Backing up %s to %s ...\n", args[0], cfg.Backup.Bucket)
	sum, err := backupExport(ctx, args[0], uploader, logger)
	if err != nil {
		return err
	}
	printBackupSummary(os.Stderr, sum)

	if ctx.Err() != nil {
		return fmt.Errorf("backup interrupted; uploaded rows were saved: %w", ctx.Err())
	}
	if sum.Stopped {
		return fmt.Errorf("backup stopped after %d consecutive failures; run again to resume", backup.MaxConsecutiveFailures)
	}
	return nil
}

// backupExport backs up the records of the export at path and rewrites the
// file. Progress is written even when the pass stops early.
func backupExport(ctx context.Context, path string, uploader *backup.Uploader, logger *zap.Logger) (backup.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return backup.Summary{}, fmt.Errorf("failed to read export: %w", err)
	}
	records, meta, err := export.ReadCSV(data)
	if err != nil {
		return backup.Summary{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		logger.Info("export has no rows", zap.String("path", path))
		return backup.Summary{}, nil
	}

	hadColumn := meta.WithBackup
	sum := uploader.Backup(ctx, records)
	if sum.Uploaded == 0 && hadColumn {
		return sum, nil
	}

	meta.WithBackup = true
	if meta.Date.IsZero() {
		meta.Date = time.Now()
	}
	if err := export.Rewrite(path, records, meta); err != nil {
		return sum, err
	}
	logger.Debug("export rewritten", zap.String("path", path), zap.Int("uploaded", sum.Uploaded))
	return sum, nil
}

func printBackupSummary(w io.Writer, sum backup.Summary) {
	fmt.Fprintf(w, "✓ Backup: %s uploaded, %d skipped, %s failed\n",
		green(sum.Uploaded), sum.Skipped, red(sum.Failed))
	if sum.Stopped {
		fmt.Fprintf(w, "%s Backup stopped early. Check bucket credentials, quota and network.\n", yellow("⚠️"))
	}
}

// backupRecords uploads the records of a finished run before they are exported
func backupRecords(ctx context.Context, cfg *model.Config, fetcher *pipeline.Fetcher, m *metrics.Metrics, logger *zap.Logger, records []model.UniqueRecord) {
	client, err := backup.NewS3Client(ctx, cfg.Backup)
	if err != nil {
		logger.Warn("backup skipped", zap.Error(err))
		return
	}
	fmt.Fprintf(os.Stderr, "⚙️  Backing up %d thumbnails to %s ...\n", len(records), cfg.Backup.Bucket)
	printBackupSummary(os.Stderr, backup.New(client, fetcher, cfg.Backup, m, logger).Backup(ctx, records))
}
