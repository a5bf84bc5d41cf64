package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(n int) model.UniqueRecord {
	attrs := model.AttributeSet{
		CaseShape:   "round",
		CaseColor:   "gold",
		DialColor:   "white",
		DialMarkers: "roman",
		StrapType:   "leather",
		StrapColor:  "brown",
	}
	if n%2 == 1 {
		attrs.StrapColor = "black"
	}
	return model.UniqueRecord{
		Item: model.CandidateItem{
			ImageURL:  "https://p3.douyinpic.com/" + string(rune('a'+n)) + ".jpeg?x=1&y=2",
			SourceRef: "https://www.douyin.com/video/" + string(rune('0'+n)),
			Likes:     "1.2万",
		},
		Hash:        "f0f0f0f0f0f0f0f0",
		Fingerprint: model.Fingerprint(attrs),
		Attributes:  attrs,
	}
}

var when = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []model.UniqueRecord{record(0), record(1)}, Meta{
		SourcePage: "https://www.douyin.com/user/abc",
		RunID:      "run-1",
		Date:       when,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "# Source Page: https://www.douyin.com/user/abc", lines[0])
	assert.Equal(t, "# Unique Watches: 2", lines[1])
	assert.Equal(t, "# Date: 2025-03-04 05:06:07", lines[2])
	assert.Equal(t, "# Run: run-1", lines[3])
	assert.Equal(t, strings.Join(Header, ","), lines[4])
	assert.Equal(t,
		"https://www.douyin.com/video/0,https://p3.douyinpic.com/a.jpeg?x=1&y=2,1.2万,round,gold,white,roman,leather,brown,round|gold|white|roman|leather|brown,f0f0f0f0f0f0f0f0",
		lines[5])
}

func TestWriteCSV_BackupColumn(t *testing.T) {
	rec := record(0)
	rec.BackupURL = "https://backup.example.com/douyin_thumbnails/f0.jpeg"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []model.UniqueRecord{rec}, Meta{Date: when, WithBackup: true}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.True(t, strings.HasSuffix(lines[3], ",phash,backup_thumbnail_url"), lines[3])
	assert.True(t, strings.HasSuffix(lines[4], ","+rec.BackupURL), lines[4])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []model.UniqueRecord{record(0)}, Meta{RunID: "run-1", Date: when}))

	assert.Contains(t, buf.String(), "?x=1&y=2")

	var doc document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 1, doc.Count)
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, "brown", doc.Watches[0].StrapColor)
}

func TestSave_AutoIncrement(t *testing.T) {
	dir := t.TempDir()
	records := []model.UniqueRecord{record(0)}

	var paths []string
	for i := 0; i < 3; i++ {
		path, err := Save(dir, "watch_sources", FormatCSV, records, Meta{Date: when})
		require.NoError(t, err)
		paths = append(paths, filepath.Base(path))
	}
	assert.Equal(t, []string{"watch_sources.csv", "watch_sources1.csv", "watch_sources2.csv"}, paths)
}

func TestSave_NoRecords(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, "watch_sources", FormatCSV, nil, Meta{Date: when})
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
