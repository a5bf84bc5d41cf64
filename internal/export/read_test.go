package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_ReadsWhatWriteCSVWrote(t *testing.T) {
	date := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	first, second := record(0), record(1)
	second.BackupURL = "s3://thumbs/douyin_thumbnails/f0.jpg"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []model.UniqueRecord{first, second}, Meta{
		SourcePage: "https://www.douyin.com/user/abc",
		RunID:      "run-1",
		Date:       date,
		WithBackup: true,
	}))

	records, meta, err := ReadCSV(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "https://www.douyin.com/user/abc", meta.SourcePage)
	assert.Equal(t, "run-1", meta.RunID)
	assert.True(t, meta.Date.Equal(date), meta.Date)
	assert.True(t, meta.WithBackup)
	assert.Equal(t, []model.UniqueRecord{first, second}, records)
}

func TestReadCSV_ExportWithoutBackupColumn(t *testing.T) {
	data := "# Source Page: https://www.douyin.com/user/x\n# Unique Watches: 1\n# Date: 2025-01-02 03:04:05\n" +
		strings.Join(Header, ",") + "\n" +
		"https://www.douyin.com/video/1,https://p3.douyinpic.com/a.jpg,845,round,gold,white,roman,leather,brown,round|gold|white|roman|leather|brown,00ff00ff00ff00ff\n"

	records, meta, err := ReadCSV([]byte(data))
	require.NoError(t, err)
	assert.False(t, meta.WithBackup)
	assert.Empty(t, meta.RunID)
	require.Len(t, records, 1)
	assert.Equal(t, "https://p3.douyinpic.com/a.jpg", records[0].Item.ImageURL)
	assert.Equal(t, model.ImageHash("00ff00ff00ff00ff"), records[0].Hash)
	assert.Empty(t, records[0].BackupURL)
}

func TestReadCSV_NoThumbnailColumn(t *testing.T) {
	_, _, err := ReadCSV([]byte("video_url,likes\nhttps://www.douyin.com/video/1,3\n"))
	assert.ErrorIs(t, err, ErrNoThumbnailColumn)
}

func TestRewrite_KeepsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch_sources.csv")
	date := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	meta := Meta{SourcePage: "https://www.douyin.com/user/abc", RunID: "run-1", Date: date}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []model.UniqueRecord{record(0)}, meta))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	records, read, err := ReadCSV(buf.Bytes())
	require.NoError(t, err)
	records[0].BackupURL = "https://backup.example.com/f0.jpg"
	read.WithBackup = true
	require.NoError(t, Rewrite(path, records, read))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "# Source Page: https://www.douyin.com/user/abc", lines[0])
	assert.Equal(t, "# Date: 2025-03-04 05:06:07", lines[2])
	assert.Equal(t, "# Run: run-1", lines[3])
	assert.True(t, strings.HasSuffix(lines[4], ","+backupColumn))
	assert.True(t, strings.HasSuffix(lines[5], ",https://backup.example.com/f0.jpg"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}
