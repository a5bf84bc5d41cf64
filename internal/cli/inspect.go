package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	inspectJSON bool
	inspectTop  int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarise the fingerprint database",
	Long: `Inspect reads the fingerprint database without modifying it and prints:
- the number of known image hashes and designs
- designs seen more than once, most frequent first
- how often each attribute value occurs

Example:
  thumbsieve inspect
  thumbsieve inspect --store other_db.json --top 50
  thumbsieve inspect --json > analysis.json`,
	Args: cobra.NoArgs,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("store", "", "fingerprint database path")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the analysis as JSON")
	inspectCmd.Flags().IntVar(&inspectTop, "top", 20, "number of recurring designs to list (0 = all)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := viper.GetString("store.path")
	if flagPath, _ := cmd.Flags().GetString("store"); flagPath != "" {
		path = flagPath
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no database at %s: %w", path, err)
	}
	st, err := store.Load(path, nil)
	if err != nil {
		return err
	}

	analysis := st.Analyze()
	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(analysis)
	}

	printAnalysis(os.Stdout, path, analysis, inspectTop)
	return nil
}

func printAnalysis(w io.Writer, path string, a store.Analysis, top int) {
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s %s\n", bold("Database"), path)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Image hashes:   %d\n", a.Hashes)
	fmt.Fprintf(w, "  Designs:        %d\n", a.Fingerprints)
	fmt.Fprintf(w, "  Sightings:      %d\n", a.Sightings)
	fmt.Fprintf(w, "  Recurring:      %d\n\n", len(a.Recurring))

	groups := a.Recurring
	if top > 0 && len(groups) > top {
		groups = groups[:top]
	}
	if len(groups) > 0 {
		fmt.Fprintf(w, "%s\n", bold("Designs seen more than once"))
		for i, g := range groups {
			fmt.Fprintf(w, "  %2d. %s x%d  (first seen %s)\n", i+1, g.Fingerprint, g.Entry.Count, g.Entry.FirstSeen)
			if g.Parsed {
				fmt.Fprintf(w, "      %s\n", describe(g.Attributes))
			}
			fmt.Fprintf(w, "      %s\n", g.Entry.ThumbnailURL)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "%s\n", bold("Attribute distribution"))
	for _, key := range model.AttributeKeys {
		var parts []string
		for _, vc := range a.Distribution[key] {
			parts = append(parts, fmt.Sprintf("%s %d", vc.Value, vc.Count))
		}
		fmt.Fprintf(w, "  %-13s %s\n", strings.ToLower(key), strings.Join(parts, ", "))
	}
}

func describe(a model.AttributeSet) string {
	return fmt.Sprintf("%s %s case, %s dial with %s markers, %s %s strap",
		a.CaseShape, a.CaseColor, a.DialColor, a.DialMarkers, a.StrapColor, a.StrapType)
}
