package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/thumbsieve/internal/cache"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the classifier verdict cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached classifier verdict",
	Long: `Clear removes the verdict cache directory. Run it after changing the
classifier prompts or the attribute vocabulary so old verdicts are not reused.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := clearVerdictCache(cfg.Cache); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Cleared verdict cache: %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func clearVerdictCache(cfg model.CacheConfig) error {
	if cfg.Dir == "" {
		return fmt.Errorf("cache.dir is not set")
	}
	if err := cache.NewLayeredCache(memoryCacheTTL, cfg.Dir, cfg.TTL).Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
