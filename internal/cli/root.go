package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
	logJSON bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "thumbsieve",
	Short: "thumbsieve - dedupe Douyin watch thumbnails",
	Long: `thumbsieve collects watch thumbnails from a Douyin page and keeps only
designs it has never seen before.

Every thumbnail goes through three gates:
  1. perceptual hash: the exact image was seen before
  2. multiplicity: the image shows more than one product
  3. fingerprint: the same six design attributes were seen before

Survivors are exported to CSV and remembered in a local JSON database.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("thumbsieve %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.thumbsieve/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON lines")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output.log_json", rootCmd.PersistentFlags().Lookup("log-json"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// envOnlyKeys are config keys with no default value that can still be set
// from THUMBSIEVE_* variables
var envOnlyKeys = []string{
	"classifier.api_key",
	"classifier.base_url",
	"http.http_proxy",
	"http.https_proxy",
	"backup.endpoint",
	"backup.public_base_url",
	"metrics.addr",
}

// initConfig reads in .env, the config file and ENV variables
func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.thumbsieve")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := setDefaults(model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	// Read in environment variables that match THUMBSIEVE_*
	viper.SetEnvPrefix("THUMBSIEVE")
	viper.SetEnvKeyReplacer(replacer())
	viper.AutomaticEnv()
	for _, key := range envOnlyKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// replacer maps nested keys onto env names: classifier.rps -> THUMBSIEVE_CLASSIFIER_RPS
func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// setDefaults registers every field of cfg as a viper default so that
// AutomaticEnv can see the nested keys
func setDefaults(cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	for section, values := range tree {
		fields, ok := values.(map[string]any)
		if !ok {
			viper.SetDefault(section, values)
			continue
		}
		for key, value := range fields {
			viper.SetDefault(section+"."+key, value)
		}
	}
	return nil
}

// loadConfig merges defaults, config file, env and flags into a Config
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	applyProviderEnv(&cfg.Classifier)
	return cfg, nil
}

// applyProviderEnv fills the API key and base URL from the provider's usual
// environment variables when the config leaves them empty
func applyProviderEnv(c *model.ClassifierConfig) {
	if c.APIKey == "" {
		switch strings.ToLower(c.Provider) {
		case "gemini", "google", "":
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.BaseURL == "" && strings.EqualFold(c.Provider, "ollama") {
		c.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
}
