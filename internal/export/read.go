package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/source"
)

// ErrNoThumbnailColumn is returned for an export without a thumbnail_url column
var ErrNoThumbnailColumn = errors.New("export has no thumbnail_url column")

// ReadCSV parses a file written by WriteCSV. The "#" lines above the header
// fill the returned Meta; WithBackup reports whether the backup column exists.
func ReadCSV(data []byte) ([]model.UniqueRecord, Meta, error) {
	meta := readMeta(data)

	r := csv.NewReader(bytes.NewReader(source.StripComments(data)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, meta, nil
	}
	if err != nil {
		return nil, meta, err
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["thumbnail_url"]; !ok {
		return nil, meta, ErrNoThumbnailColumn
	}
	_, meta.WithBackup = col[backupColumn]

	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var records []model.UniqueRecord
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, meta, err
		}
		records = append(records, model.UniqueRecord{
			Item: model.CandidateItem{
				ImageURL:  field(rec, "thumbnail_url"),
				SourceRef: field(rec, "video_url"),
				Likes:     field(rec, "likes"),
			},
			Hash:        model.ImageHash(field(rec, "phash")),
			Fingerprint: model.FingerprintKey(field(rec, "fingerprint")),
			Attributes: model.AttributeSet{
				CaseShape:   model.CaseShape(field(rec, "case_shape")),
				CaseColor:   model.CaseColor(field(rec, "case_color")),
				DialColor:   model.DialColor(field(rec, "dial_color")),
				DialMarkers: model.DialMarkers(field(rec, "dial_markers")),
				StrapType:   model.StrapType(field(rec, "strap_type")),
				StrapColor:  model.StrapColor(field(rec, "strap_color")),
			},
			BackupURL: field(rec, backupColumn),
		})
	}
	return records, meta, nil
}

func readMeta(data []byte) Meta {
	var meta Meta
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "#") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Source Page":
			meta.SourcePage = value
		case "Run":
			meta.RunID = value
		case "Date":
			if t, err := time.ParseInLocation(DateLayout, value, time.Local); err == nil {
				meta.Date = t
			}
		}
	}
	return meta
}

// Rewrite replaces the CSV at path with records, going through a temp file
// so a failed write leaves the old export intact
func Rewrite(path string, records []model.UniqueRecord, meta Meta) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	err = WriteCSV(tmp, records, meta)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
