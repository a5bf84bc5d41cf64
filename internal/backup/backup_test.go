package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ppiankov/thumbsieve/internal/metrics"
	"github.com/ppiankov/thumbsieve/internal/model"
	"github.com/ppiankov/thumbsieve/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
	// flaky fails this many puts before succeeding
	flaky int
	puts  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.puts++
	if f.flaky > 0 {
		f.flaky--
		f.mu.Unlock()
		return nil, errors.New("slow down")
	}
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

type fakeDownloader struct {
	calls int
	fail  bool
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL string) (*pipeline.Payload, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("%w: 403", pipeline.ErrBadStatus)
	}
	return &pipeline.Payload{Data: []byte("img:" + rawURL), ContentType: "image/webp", FinalURL: rawURL}, nil
}

func records(n int) []model.UniqueRecord {
	out := make([]model.UniqueRecord, n)
	for i := range out {
		out[i] = model.UniqueRecord{
			Item: model.CandidateItem{ImageURL: fmt.Sprintf("https://p3.douyinpic.com/%d.webp", i)},
			Hash: model.ImageHash(fmt.Sprintf("%016x", i+1)),
		}
	}
	return out
}

func TestBackup_UploadsAndSkips(t *testing.T) {
	client := newFakeS3()
	dl := &fakeDownloader{}
	m := metrics.New()
	u := New(client, dl, model.BackupConfig{
		Bucket:        "thumbs",
		Prefix:        "/douyin_thumbnails/",
		PublicBaseURL: "https://cdn.example.com/",
	}, m, nil)

	recs := records(3)
	recs[1].BackupURL = "https://cdn.example.com/douyin_thumbnails/old.jpg"

	sum := u.Backup(context.Background(), recs)

	assert.Equal(t, Summary{Uploaded: 2, Skipped: 1}, sum)
	assert.Equal(t, 2, dl.calls)
	assert.Equal(t, "https://cdn.example.com/douyin_thumbnails/0000000000000001.webp", recs[0].BackupURL)
	assert.Equal(t, "https://cdn.example.com/douyin_thumbnails/old.jpg", recs[1].BackupURL)

	require.Contains(t, client.objects, "thumbs/douyin_thumbnails/0000000000000003.webp")
	assert.Equal(t, "img:https://p3.douyinpic.com/2.webp", string(client.objects["thumbs/douyin_thumbnails/0000000000000003.webp"]))
	assert.Equal(t, "image/webp", client.types["douyin_thumbnails/0000000000000003.webp"])

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BackupsTotal.WithLabelValues("uploaded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BackupsTotal.WithLabelValues("skipped")))
}

func TestBackup_StopsAfterConsecutiveFailures(t *testing.T) {
	client := newFakeS3()
	client.fail = true
	u := New(client, &fakeDownloader{}, model.BackupConfig{Bucket: "thumbs"}, nil, nil)

	recs := records(25)
	sum := u.Backup(context.Background(), recs)

	assert.True(t, sum.Stopped)
	assert.Equal(t, MaxConsecutiveFailures, sum.Failed)
	for _, r := range recs {
		assert.Empty(t, r.BackupURL)
	}
}

func TestBackup_SkipResetsFailureStreak(t *testing.T) {
	dl := &fakeDownloader{fail: true}
	u := New(newFakeS3(), dl, model.BackupConfig{Bucket: "thumbs"}, nil, nil)

	recs := records(15)
	recs[8].BackupURL = "s3://thumbs/done.jpg"

	sum := u.Backup(context.Background(), recs)

	assert.False(t, sum.Stopped)
	assert.Equal(t, 14, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
}

func TestObjectKey(t *testing.T) {
	rec := model.UniqueRecord{Hash: "abcdef0123456789"}
	assert.Equal(t, "p/abcdef0123456789.jpg", ObjectKey("p", rec, "image/jpeg"))
	assert.Equal(t, "abcdef0123456789.png", ObjectKey("", rec, "image/png; charset=binary"))
	assert.Equal(t, "p/abcdef0123456789.jpg", ObjectKey("p", rec, "application/octet-stream"))

	noHash := model.UniqueRecord{Fingerprint: "round|gold|white|roman|leather|brown"}
	assert.Equal(t, "round_gold_white_roman_leather_brown.jpg", ObjectKey("", noHash, "image/jpeg"))
}

func TestBackup_DefaultURLScheme(t *testing.T) {
	u := New(newFakeS3(), &fakeDownloader{}, model.BackupConfig{Bucket: "thumbs", Prefix: "x"}, nil, nil)
	recs := records(1)
	u.Backup(context.Background(), recs)
	assert.Equal(t, "s3://thumbs/x/0000000000000001.webp", recs[0].BackupURL)
}

func TestBackup_RetriesEachUpload(t *testing.T) {
	client := newFakeS3()
	client.flaky = 2
	u := New(client, &fakeDownloader{}, model.BackupConfig{Bucket: "thumbs", Attempts: 3}, nil, nil)

	var waits []time.Duration
	u.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	u.retryDelay = time.Second

	recs := records(1)
	sum := u.Backup(context.Background(), recs)

	assert.Equal(t, Summary{Uploaded: 1}, sum)
	assert.Equal(t, 3, client.puts)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
	assert.Equal(t, "s3://thumbs/0000000000000001.webp", recs[0].BackupURL)
}

func TestBackup_GivesUpAfterAttempts(t *testing.T) {
	client := newFakeS3()
	client.fail = true
	u := New(client, &fakeDownloader{}, model.BackupConfig{Bucket: "thumbs", Attempts: 2}, nil, nil)

	recs := records(3)
	sum := u.Backup(context.Background(), recs)

	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, 6, client.puts)
}

func TestBackup_MissingThumbnailNotRetried(t *testing.T) {
	client := newFakeS3()
	dl := &fakeDownloader{}
	u := New(client, dl, model.BackupConfig{Bucket: "thumbs"}, nil, nil)

	sum := u.Backup(context.Background(), []model.UniqueRecord{{Hash: "0000000000000001"}})

	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, dl.calls)
	assert.Zero(t, client.puts)
}
