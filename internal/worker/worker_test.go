package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"videopipeline/internal/job"
	"videopipeline/internal/storage"
	"videopipeline/internal/store"
)

type fakeGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string][]byte)}
}

func (g *fakeGateway) DownloadTo(_ context.Context, key, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets = append(g.gets, path)
	data, ok := g.objects[key]
	if !ok {
		return fmt.Errorf("fetch %s: no such object", key)
	}
	if len(data) == 0 {
		return fmt.Errorf("fetch %s: %w", key, storage.ErrEmptyObject)
	}
	return os.WriteFile(path, data, 0o644)
}

func (g *fakeGateway) PutFile(_ context.Context, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = data
	return nil
}

func (g *fakeGateway) PublicURL(key string) string {
	return "http://cdn.test/" + key
}

// fakeEncoder writes a small dummy rendition next to the input, failing
// at failAt if set.
type fakeEncoder struct {
	failAt int
}

func (e *fakeEncoder) Encode(_ context.Context, inputPath string, targetHeight int) (string, error) {
	if e.failAt == targetHeight {
		return "", fmt.Errorf("encode %dp: exit status 1", targetHeight)
	}
	out := filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("%dp.mp4", targetHeight))
	if err := os.WriteFile(out, []byte("rendition"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func newTestWorker(t *testing.T, s store.JobStore, g *fakeGateway, failAt int) *Worker {
	t.Helper()
	return &Worker{
		ID:           "worker-test",
		Store:        s,
		Storage:      g,
		Encoder:      &fakeEncoder{failAt: failAt},
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		TempDir:      t.TempDir(),
		PollInterval: time.Millisecond,
	}
}

func seedAndClaim(t *testing.T, s store.JobStore, g *fakeGateway, id, masterKey string, make4k bool) *job.Job {
	t.Helper()
	g.objects[masterKey] = []byte("master bytes")
	err := s.Create(context.Background(), &job.Job{
		ID:        id,
		MasterKey: masterKey,
		Make4K:    make4k,
		Status:    job.StatusProcessing,
	})
	if err != nil {
		t.Fatal(err)
	}
	claimed, err := s.ClaimNext(context.Background(), "worker-test")
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil {
		t.Fatal("seeded job was not claimable")
	}
	return claimed
}

func TestProcessFullSuccess(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 0)

	claimed := seedAndClaim(t, s, g, "abc123", "video/master/abc123/in.mov", false)
	if err := w.Process(context.Background(), claimed); err != nil {
		t.Fatalf("process: %v", err)
	}

	j, err := s.Get(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != job.StatusActive {
		t.Errorf("status = %s, want active", j.Status)
	}
	if j.MP4720URL != "http://cdn.test/video/mp4/abc123/720p.mp4" {
		t.Errorf("720 url = %q", j.MP4720URL)
	}
	if j.MP41080URL != "http://cdn.test/video/mp4/abc123/1080p.mp4" {
		t.Errorf("1080 url = %q", j.MP41080URL)
	}
	if j.MP42160URL != "" {
		t.Errorf("2160 url = %q, want empty when make4k=false", j.MP42160URL)
	}
	if _, ok := g.objects["video/mp4/abc123/720p.mp4"]; !ok {
		t.Error("720p rendition not uploaded")
	}
	if _, ok := g.objects["video/mp4/abc123/1080p.mp4"]; !ok {
		t.Error("1080p rendition not uploaded")
	}
}

func TestProcess4KOptIn(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 0)

	claimed := seedAndClaim(t, s, g, "uhd1", "video/master/uhd1/in.mp4", true)
	if err := w.Process(context.Background(), claimed); err != nil {
		t.Fatal(err)
	}

	j, _ := s.Get(context.Background(), "uhd1")
	for _, url := range []string{j.MP4720URL, j.MP41080URL, j.MP42160URL} {
		if url == "" {
			t.Error("expected all three rendition urls on a 4k job")
		}
	}
	if _, ok := g.objects["video/mp4/uhd1/2160p.mp4"]; !ok {
		t.Error("2160p rendition not uploaded")
	}
}

func TestEncodeFailureMarksJobFailedAndCleansScratch(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 1080)

	claimed := seedAndClaim(t, s, g, "bad1", "video/master/bad1/in.mp4", false)
	err := w.Process(context.Background(), claimed)
	if err == nil {
		t.Fatal("expected encode failure")
	}
	w.fail(claimed.ID, err)

	j, _ := s.Get(context.Background(), "bad1")
	if j.Status != job.StatusFailed {
		t.Errorf("status = %s, want failed", j.Status)
	}
	if j.LastError == "" {
		t.Error("failure reason not persisted")
	}
	if j.MP4720URL != "" || j.MP41080URL != "" {
		t.Error("partial renditions must not be recorded on failure")
	}
	// 720p succeeded before the 1080p failure but must be discarded.
	if _, ok := g.objects["video/mp4/bad1/720p.mp4"]; ok {
		t.Error("720p rendition uploaded despite job failure")
	}

	entries, readErr := os.ReadDir(w.TempDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir left behind: %v", entries)
	}
}

func TestDownloadFailureMarksJobFailed(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 0)

	if err := s.Create(context.Background(), &job.Job{
		ID:        "gone",
		MasterKey: "video/master/gone/in.mp4",
		Status:    job.StatusProcessing,
	}); err != nil {
		t.Fatal(err)
	}
	claimed, err := s.ClaimNext(context.Background(), "worker-test")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	err = w.Process(context.Background(), claimed)
	if err == nil {
		t.Fatal("expected download failure for missing master")
	}
	if !strings.Contains(err.Error(), "download master") {
		t.Errorf("error = %v, want download stage failure", err)
	}

	entries, _ := os.ReadDir(w.TempDir)
	if len(entries) != 0 {
		t.Errorf("scratch dir left behind after download failure")
	}
}

func TestMasterDownloadKeepsKnownExtension(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"video/master/a/in.mov", ".mov"},
		{"video/master/a/in.M4V", ".m4v"},
		{"video/master/a/in.mp4", ".mp4"},
		{"video/master/a/in.webm", ".mp4"},
		{"video/master/a/in", ".mp4"},
	}
	for _, tc := range cases {
		if got := MasterExt(tc.key); got != tc.want {
			t.Errorf("MasterExt(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestProcessDownloadsToExtensionGuessedPath(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 0)

	claimed := seedAndClaim(t, s, g, "ext1", "video/master/ext1/in.mov", false)
	if err := w.Process(context.Background(), claimed); err != nil {
		t.Fatal(err)
	}
	if len(g.gets) != 1 || !strings.HasSuffix(g.gets[0], "master.mov") {
		t.Errorf("master downloaded to %v, want a master.mov path", g.gets)
	}
}

func TestRunProcessesJobThenIdles(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 0)

	g.objects["video/master/loop1/in.mp4"] = []byte("master bytes")
	if err := s.Create(context.Background(), &job.Job{
		ID:        "loop1",
		MasterKey: "video/master/loop1/in.mp4",
		Status:    job.StatusProcessing,
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run returned %v, want context deadline", err)
	}

	j, getErr := s.Get(context.Background(), "loop1")
	if getErr != nil {
		t.Fatal(getErr)
	}
	if j.Status != job.StatusActive {
		t.Errorf("status = %s, want active after one loop iteration", j.Status)
	}
}

func TestRunSurvivesJobFailure(t *testing.T) {
	s := store.NewMemoryStore()
	g := newFakeGateway()
	w := newTestWorker(t, s, g, 720)

	g.objects["video/master/bad2/in.mp4"] = []byte("master bytes")
	if err := s.Create(context.Background(), &job.Job{
		ID:        "bad2",
		MasterKey: "video/master/bad2/in.mp4",
		Status:    job.StatusProcessing,
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	j, err := s.Get(context.Background(), "bad2")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != job.StatusFailed {
		t.Errorf("status = %s, want failed", j.Status)
	}
}
