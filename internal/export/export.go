// Package export writes the unique records of a run to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// DateLayout is the layout of the "# Date:" comment line
const DateLayout = "2006-01-02 15:04:05"

// Format selects the output encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json"
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want csv or json)", s)
}

// Meta describes the run the records came from
type Meta struct {
	SourcePage string
	RunID      string
	Date       time.Time
	// WithBackup adds the backup_thumbnail_url column
	WithBackup bool
}

// Header is the CSV column order
var Header = []string{
	"video_url", "thumbnail_url", "likes",
	"case_shape", "case_color", "dial_color", "dial_markers", "strap_type", "strap_color",
	"fingerprint", "phash",
}

const backupColumn = "backup_thumbnail_url"

// Row is one exported record; the JSON tags match the CSV columns
type Row struct {
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Likes        string `json:"likes"`
	CaseShape    string `json:"case_shape"`
	CaseColor    string `json:"case_color"`
	DialColor    string `json:"dial_color"`
	DialMarkers  string `json:"dial_markers"`
	StrapType    string `json:"strap_type"`
	StrapColor   string `json:"strap_color"`
	Fingerprint  string `json:"fingerprint"`
	PHash        string `json:"phash"`
	BackupURL    string `json:"backup_thumbnail_url,omitempty"`
}

// NewRow flattens a unique record
func NewRow(r model.UniqueRecord) Row {
	return Row{
		VideoURL:     r.Item.SourceRef,
		ThumbnailURL: r.Item.ImageURL,
		Likes:        r.Item.Likes,
		CaseShape:    string(r.Attributes.CaseShape),
		CaseColor:    string(r.Attributes.CaseColor),
		DialColor:    string(r.Attributes.DialColor),
		DialMarkers:  string(r.Attributes.DialMarkers),
		StrapType:    string(r.Attributes.StrapType),
		StrapColor:   string(r.Attributes.StrapColor),
		Fingerprint:  string(r.Fingerprint),
		PHash:        string(r.Hash),
		BackupURL:    r.BackupURL,
	}
}

func (r Row) fields(withBackup bool) []string {
	out := []string{
		r.VideoURL, r.ThumbnailURL, r.Likes,
		r.CaseShape, r.CaseColor, r.DialColor, r.DialMarkers, r.StrapType, r.StrapColor,
		r.Fingerprint, r.PHash,
	}
	if withBackup {
		out = append(out, r.BackupURL)
	}
	return out
}

// document is the JSON export layout
type document struct {
	SourcePage string `json:"source_page,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Date       string `json:"date"`
	Count      int    `json:"unique_watches"`
	Watches    []Row  `json:"watches"`
}

// WriteCSV writes the comment lines, the header and one row per record
func WriteCSV(w io.Writer, records []model.UniqueRecord, meta Meta) error {
	if _, err := fmt.Fprintf(w, "# Source Page: %s\n# Unique Watches: %d\n# Date: %s\n",
		meta.SourcePage, len(records), meta.Date.Format(DateLayout)); err != nil {
		return err
	}
	if meta.RunID != "" {
		if _, err := fmt.Fprintf(w, "# Run: %s\n", meta.RunID); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	header := Header
	if meta.WithBackup {
		header = append(append([]string(nil), Header...), backupColumn)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(NewRow(r).fields(meta.WithBackup)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the records as an indented JSON document
func WriteJSON(w io.Writer, records []model.UniqueRecord, meta Meta) error {
	doc := document{
		SourcePage: meta.SourcePage,
		RunID:      meta.RunID,
		Date:       meta.Date.Format(DateLayout),
		Count:      len(records),
		Watches:    make([]Row, 0, len(records)),
	}
	for _, r := range records {
		doc.Watches = append(doc.Watches, NewRow(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// NextPath returns dir/base.ext, or dir/base1.ext, dir/base2.ext, ... for
// the first name that does not exist yet
func NextPath(dir, base string, format Format) (string, error) {
	ext := "." + string(format)
	candidate := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, base+strconv.Itoa(n)+ext)
	}
}

// Save writes records to the next free file name and returns its path.
// With no records nothing is written and the path is empty.
func Save(dir, base string, format Format, records []model.UniqueRecord, meta Meta) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path, err := NextPath(dir, base, format)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch format {
	case FormatJSON:
		err = WriteJSON(f, records, meta)
	default:
		err = WriteCSV(f, records, meta)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
