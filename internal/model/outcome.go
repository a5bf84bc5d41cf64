package model

import "sort"

// Outcome is the terminal state of one candidate in the pipeline
type Outcome string

const (
	OutcomeUnique               Outcome = "unique"
	OutcomeDuplicatePHash       Outcome = "duplicate_phash"
	OutcomeMultipleProducts     Outcome = "multiple_products"
	OutcomeDuplicateFingerprint Outcome = "duplicate_fingerprint"

	OutcomeDownloadFailed       Outcome = "download_failed"
	OutcomePHashFailed          Outcome = "phash_failed"
	OutcomeRateLimit            Outcome = "rate_limit"
	OutcomeAPIError             Outcome = "api_error"
	OutcomeEmptyResponse        Outcome = "empty_response"
	OutcomeInvalidResponse      Outcome = "invalid_response"
	OutcomeIncompleteAttributes Outcome = "incomplete_attributes"
	OutcomeProcessingError      Outcome = "processing_error"
	OutcomeTimeout              Outcome = "timeout"
)

// IsError reports whether the outcome is a failure rather than a legitimate
// accept/reject decision
func (o Outcome) IsError() bool {
	switch o {
	case OutcomeUnique, OutcomeDuplicatePHash, OutcomeMultipleProducts, OutcomeDuplicateFingerprint:
		return false
	default:
		return true
	}
}

// Hint returns an actionable suggestion for an error outcome, or ""
func (o Outcome) Hint() string {
	switch o {
	case OutcomeRateLimit:
		return "rate limit: wait for quota reset or lower --classifier-rps"
	case OutcomeAPIError:
		return "api error: check the API key and model name"
	case OutcomeDownloadFailed:
		return "download failed: thumbnail URLs may have expired, re-scrape the page"
	case OutcomeIncompleteAttributes:
		return "incomplete attributes: image is ambiguous, nothing to retry"
	case OutcomeTimeout:
		return "timeout: raise --item-timeout or lower --concurrency"
	case OutcomeEmptyResponse, OutcomeInvalidResponse:
		return "model answered off-format: try another --classifier-model"
	default:
		return ""
	}
}

// RunStats aggregates outcome counts for one run.
// Counts are folded with Add, so the result does not depend on completion order.
type RunStats struct {
	Total  int             `json:"total"`
	Counts map[Outcome]int `json:"counts"`
}

// NewRunStats creates empty stats for a run of total items
func NewRunStats(total int) RunStats {
	return RunStats{
		Total:  total,
		Counts: make(map[Outcome]int),
	}
}

// Add records one outcome
func (s *RunStats) Add(o Outcome) {
	if s.Counts == nil {
		s.Counts = make(map[Outcome]int)
	}
	s.Counts[o]++
}

// Count returns the number of items that ended with o
func (s RunStats) Count(o Outcome) int {
	return s.Counts[o]
}

// Errors returns the aggregate number of error outcomes
func (s RunStats) Errors() int {
	n := 0
	for o, c := range s.Counts {
		if o.IsError() {
			n += c
		}
	}
	return n
}

// ErrorKinds returns the error outcomes that occurred, most frequent first
func (s RunStats) ErrorKinds() []Outcome {
	var kinds []Outcome
	for o, c := range s.Counts {
		if o.IsError() && c > 0 {
			kinds = append(kinds, o)
		}
	}
	sort.Slice(kinds, func(i, j int) bool {
		if s.Counts[kinds[i]] != s.Counts[kinds[j]] {
			return s.Counts[kinds[i]] > s.Counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

// ErrorRatio returns errors / total, or 0 for an empty run
func (s RunStats) ErrorRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Errors()) / float64(s.Total)
}
