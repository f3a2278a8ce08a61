package dumps

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/cratelabs/discolake/internal/domain"
)

type fakeObjectAPI struct {
	objects map[string][]byte
	stats   []string
	fetches []string
}

func (f *fakeObjectAPI) StatObject(_ context.Context, _ string, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.stats = append(f.stats, key)
	if _, ok := f.objects[key]; ok {
		return minio.ObjectInfo{Key: key}, nil
	}
	return minio.ObjectInfo{}, errors.New("The specified key does not exist.")
}

func (f *fakeObjectAPI) FGetObject(_ context.Context, _ string, key, filePath string, _ minio.GetObjectOptions) error {
	f.fetches = append(f.fetches, key)
	content, ok := f.objects[key]
	if !ok {
		return errors.New("The specified key does not exist.")
	}
	return os.WriteFile(filePath, content, 0o644)
}

func newTestClient(api objectAPI) *Client {
	return &Client{api: api, bucket: "discogs-data-dumps", log: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey("20260115", "artists")
	if got != "data/2026/discogs_20260115_artists.xml.gz" {
		t.Fatalf("ObjectKey=%q", got)
	}
}

func TestFindDumpDateDescendingScan(t *testing.T) {
	api := &fakeObjectAPI{objects: map[string][]byte{
		"data/2026/discogs_20260101_artists.xml.gz": {},
		"data/2026/discogs_20260115_artists.xml.gz": {},
	}}
	ymd, err := newTestClient(api).FindDumpDate(context.Background(), "2026-01", "artists")
	if err != nil {
		t.Fatalf("FindDumpDate err=%v", err)
	}
	if ymd != "20260115" {
		t.Fatalf("ymd=%q, want the latest published day", ymd)
	}
	// Scan starts at the month's last day and stops at the first hit.
	if api.stats[0] != "data/2026/discogs_20260131_artists.xml.gz" {
		t.Fatalf("first probe=%q", api.stats[0])
	}
	if api.stats[len(api.stats)-1] != "data/2026/discogs_20260115_artists.xml.gz" {
		t.Fatalf("last probe=%q", api.stats[len(api.stats)-1])
	}
}

func TestFindDumpDateHandlesShortMonths(t *testing.T) {
	api := &fakeObjectAPI{objects: map[string][]byte{
		"data/2026/discogs_20260228_releases.xml.gz": {},
	}}
	ymd, err := newTestClient(api).FindDumpDate(context.Background(), "2026-02", "releases")
	if err != nil {
		t.Fatalf("FindDumpDate err=%v", err)
	}
	if ymd != "20260228" {
		t.Fatalf("ymd=%q", ymd)
	}
}

func TestFindDumpDateNotFound(t *testing.T) {
	_, err := newTestClient(&fakeObjectAPI{objects: map[string][]byte{}}).FindDumpDate(context.Background(), "2026-03", "artists")
	if err == nil || !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestFindDumpDateRejectsBadInput(t *testing.T) {
	client := newTestClient(&fakeObjectAPI{})
	if _, err := client.FindDumpDate(context.Background(), "January 2026", "artists"); err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error for month, got %v", err)
	}
	if _, err := client.FindDumpDate(context.Background(), "2026-01", "podcasts"); err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error for probe type, got %v", err)
	}
}

func TestFetchDownloadsAndSkipsExisting(t *testing.T) {
	api := &fakeObjectAPI{objects: map[string][]byte{
		"data/2026/discogs_20260115_artists.xml.gz":  []byte("artists"),
		"data/2026/discogs_20260115_releases.xml.gz": []byte("releases"),
	}}
	destDir := t.TempDir()
	client := newTestClient(api)
	ctx := context.Background()

	paths, err := client.Fetch(ctx, "20260115", []string{"artists", "releases"}, destDir)
	if err != nil {
		t.Fatalf("Fetch err=%v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths=%v", paths)
	}
	content, err := os.ReadFile(filepath.Join(destDir, "discogs_20260115_artists.xml.gz"))
	if err != nil || string(content) != "artists" {
		t.Fatalf("content=%q err=%v", content, err)
	}

	// Second pass downloads nothing.
	api.fetches = nil
	if _, err := client.Fetch(ctx, "20260115", []string{"artists", "releases"}, destDir); err != nil {
		t.Fatalf("second Fetch err=%v", err)
	}
	if len(api.fetches) != 0 {
		t.Fatalf("existing files must be skipped, fetched %v", api.fetches)
	}
}

func TestFetchMissingObject(t *testing.T) {
	client := newTestClient(&fakeObjectAPI{objects: map[string][]byte{}})
	_, err := client.Fetch(context.Background(), "20260115", []string{"artists"}, t.TempDir())
	if err == nil || !domain.IsKind(err, domain.KindExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestFetchRejectsBadInput(t *testing.T) {
	client := newTestClient(&fakeObjectAPI{})
	if _, err := client.Fetch(context.Background(), "2026-01-15", nil, t.TempDir()); err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error for date, got %v", err)
	}
	if _, err := client.Fetch(context.Background(), "20260115", []string{"podcasts"}, t.TempDir()); err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error for type, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Endpoint: "s3.us-west-2.amazonaws.com", Bucket: "discogs-data-dumps"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := (Config{Bucket: "b"}).Validate(); err == nil {
		t.Fatalf("missing endpoint accepted")
	}
	if err := (Config{Endpoint: "e"}).Validate(); err == nil {
		t.Fatalf("missing bucket accepted")
	}
}
