package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"github.com/ppiankov/thumbsieve/internal/worker"
)

// progressEvery is how often the progress line is printed, in items
const progressEvery = 25

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func printBanner(w io.Writer, cfg *model.Config, page string, items, hashes, fingerprints int) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s\n", bold("thumbsieve run"))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Source:       %s\n", page)
	fmt.Fprintf(w, "  Candidates:   %d\n", items)
	fmt.Fprintf(w, "  Database:     %s (%d hashes, %d designs)\n", cfg.Store.Path, hashes, fingerprints)
	fmt.Fprintf(w, "  Classifier:   %s %s\n", cfg.Classifier.Provider, cfg.Classifier.Model)
	fmt.Fprintf(w, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(w, "  Item timeout: %v\n", cfg.Concurrency.ItemTimeout)
	fmt.Fprintf(w, "\n")
}

// progressPrinter prints a running tally every progressEvery items and at the end
func progressPrinter(w io.Writer) worker.ProgressFunc {
	unique, errs := 0, 0
	return func(done, total int, res pipeline.Result) {
		switch {
		case res.Outcome == model.OutcomeUnique:
			unique++
		case res.Outcome.IsError():
			errs++
		}
		if done%progressEvery == 0 || done == total {
			fmt.Fprintf(w, "  %s %d/%d  unique %s  errors %s\n",
				cyan("▸"), done, total, green(unique), red(errs))
		}
	}
}

// printSummary prints the outcome breakdown with hints for error kinds
func printSummary(w io.Writer, report *worker.RunReport) {
	if report == nil {
		return
	}
	s := report.Stats

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s  (run %s, %s)\n", bold("Summary"), report.RunID, report.Duration().Round(time.Second))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Total:                 %d\n", s.Total)
	fmt.Fprintf(w, "  Unique:                %s\n", green(s.Count(model.OutcomeUnique)))
	fmt.Fprintf(w, "  Duplicate (image):     %d\n", s.Count(model.OutcomeDuplicatePHash))
	fmt.Fprintf(w, "  Multiple products:     %d\n", s.Count(model.OutcomeMultipleProducts))
	fmt.Fprintf(w, "  Duplicate (design):    %d\n", s.Count(model.OutcomeDuplicateFingerprint))

	errs := s.Errors()
	if errs == 0 {
		fmt.Fprintf(w, "  Errors:                0\n\n")
		return
	}
	fmt.Fprintf(w, "  Errors:                %s\n", red(errs))
	for _, kind := range s.ErrorKinds() {
		fmt.Fprintf(w, "    %-22s %d\n", string(kind)+":", s.Count(kind))
	}

	var hints []string
	for _, kind := range s.ErrorKinds() {
		if hint := kind.Hint(); hint != "" {
			hints = append(hints, hint)
		}
	}
	if len(hints) > 0 {
		fmt.Fprintf(w, "\n  %s\n", yellow("Hints:"))
		for _, hint := range hints {
			fmt.Fprintf(w, "    - %s\n", hint)
		}
	}
	fmt.Fprintf(w, "\n")
}
