// Package source produces candidate thumbnails from a file, a saved page
// snapshot or a live Douyin page.
package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
)

// ErrNoImageColumn is returned for a CSV without a thumbnail_url or image_url column
var ErrNoImageColumn = errors.New("csv has no thumbnail_url or image_url column")

// fileItem accepts both the current keys and the legacy scraper export keys
type fileItem struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	SourceRef    string `json:"source_reference"`
	VideoURL     string `json:"video_url"`
	Likes        any    `json:"likes"`
}

func (f fileItem) candidate() model.CandidateItem {
	item := model.CandidateItem{
		ImageURL:  firstNonEmpty(f.ImageURL, f.ThumbnailURL),
		SourceRef: firstNonEmpty(f.SourceRef, f.VideoURL),
	}
	switch v := f.Likes.(type) {
	case string:
		item.Likes = v
	case float64:
		item.Likes = fmt.Sprintf("%g", v)
	}
	return item
}

// FromFile reads candidates from path. The format follows the extension:
// .json is an array of objects, .csv needs a header row, anything else is
// one image URL per line.
func FromFile(path string) ([]model.CandidateItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}

	var items []model.CandidateItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		items, err = parseJSON(data)
	case ".csv":
		items, err = parseCSV(data)
	default:
		items = parseLines(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return Dedupe(items), nil
}

func parseJSON(data []byte) ([]model.CandidateItem, error) {
	var raw []fileItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := make([]model.CandidateItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, r.candidate())
	}
	return items, nil
}

func parseCSV(data []byte) ([]model.CandidateItem, error) {
	r := csv.NewReader(bytes.NewReader(StripComments(data)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	imageCol, ok := col["thumbnail_url"]
	if !ok {
		if imageCol, ok = col["image_url"]; !ok {
			return nil, ErrNoImageColumn
		}
	}

	field := func(rec []string, names ...string) string {
		for _, name := range names {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
		}
		return ""
	}

	var items []model.CandidateItem
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if imageCol >= len(rec) {
			continue
		}
		items = append(items, model.CandidateItem{
			ImageURL:  strings.TrimSpace(rec[imageCol]),
			SourceRef: field(rec, "video_url", "source_reference"),
			Likes:     field(rec, "likes"),
		})
	}
	return items, nil
}

// StripComments drops the "# ..." lines the exporter writes above the header
func StripComments(data []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		out.Write(line)
	}
	return out.Bytes()
}

func parseLines(data []byte) []model.CandidateItem {
	var items []model.CandidateItem
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, model.CandidateItem{ImageURL: line})
	}
	return items
}

// Dedupe drops items without an image URL and repeated image URLs, keeping
// the first, and numbers the survivors from 1
func Dedupe(items []model.CandidateItem) []model.CandidateItem {
	seen := make(map[string]bool, len(items))
	out := make([]model.CandidateItem, 0, len(items))
	for _, item := range items {
		if item.ImageURL == "" || seen[item.ImageURL] {
			continue
		}
		seen[item.ImageURL] = true
		item.RankHint = len(out) + 1
		out = append(out, item)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
