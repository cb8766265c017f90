package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// fakeDownloader serves whatever content is currently set.
type fakeDownloader struct {
	content []byte
	err     error
	calls   int
}

func (f *fakeDownloader) Download(_ context.Context, _, _ string, format export.Format) (*client.Download, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &client.Download{Format: format, Content: f.content}, nil
}

func (f *fakeDownloader) Close() error { return nil }

func TestFileWatcher_Refresh(t *testing.T) {
	dir := t.TempDir()
	dl := &fakeDownloader{content: []byte("A=1\n")}
	var out bytes.Buffer
	w := &fileWatcher{
		dl:   dl,
		opts: downloadOptions{ProjectID: "prj-1", ConfigID: "cfg-1", Format: export.FormatEnv, Directory: dir},
		out:  &out,
	}
	ctx := context.Background()
	path := filepath.Join(dir, ".env")

	if err := w.refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "A=1\n" {
		t.Fatalf("content = %q", got)
	}

	// Unchanged content is not rewritten.
	if err := w.refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if n := strings.Count(out.String(), "wrote"); n != 1 {
		t.Fatalf("writes reported = %d, want 1", n)
	}

	dl.content = []byte("A=2\n")
	if err := w.refresh(ctx); err != nil {
		t.Fatalf("third refresh: %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "A=2\n" {
		t.Fatalf("content after change = %q", got)
	}

	dl.err = errors.New("boom")
	if err := w.refresh(ctx); err == nil {
		t.Fatal("expected download error")
	}
}

func TestEventProject(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"ConfigEvent", `{"project_id":"prj-1","config_id":"cfg-1"}`, "prj-1"},
		{"NoProject", `{"key":"A"}`, ""},
		{"Garbage", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventProject([]byte(tt.data)); got != tt.want {
				t.Errorf("eventProject(%s) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestAffects(t *testing.T) {
	tests := []struct {
		name string
		msg  events.Message
		want bool
	}{
		{"HeaderMatch", events.Message{ProjectID: "prj-1"}, true},
		{"HeaderOther", events.Message{ProjectID: "prj-2", Data: []byte(`{"project_id":"prj-1"}`)}, false},
		{"PayloadMatch", events.Message{Data: []byte(`{"project_id":"prj-1"}`)}, true},
		{"PayloadOther", events.Message{Data: []byte(`{"project_id":"prj-2"}`)}, false},
		{"Unscoped", events.Message{Data: []byte(`{}`)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := affects(tt.msg, "prj-1"); got != tt.want {
				t.Errorf("affects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func startNATS(t *testing.T) string {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

// runWatcher starts w.watchNATS and waits for its subscription. The
// returned func stops the watcher and reports its error.
func runWatcher(t *testing.T, w *fileWatcher, url string) func() error {
	t.Helper()
	w.ready = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.watchNATS(ctx, url) }()
	select {
	case <-w.ready:
	case err := <-done:
		cancel()
		t.Fatalf("watchNATS: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("subscription not ready")
	}
	return func() error {
		cancel()
		return <-done
	}
}

// waitForFile polls path until it holds want, returning false on timeout.
func waitForFile(path, want string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got, err := os.ReadFile(path); err == nil && string(got) == want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestFileWatcher_WatchNATS(t *testing.T) {
	url := startNATS(t)
	dir := t.TempDir()
	dl := &fakeDownloader{content: []byte("A=1\n")}
	w := &fileWatcher{
		dl:   dl,
		opts: downloadOptions{ProjectID: "prj-1", ConfigID: "cfg-1", Format: export.FormatEnv, Directory: dir},
		out:  &bytes.Buffer{},
	}
	stop := runWatcher(t, w, url)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()
	if err := pub.Publish(context.Background(), events.TopicValueSet, events.ValueChanged{ProjectID: "prj-1", ConfigID: "cfg-1", Key: "A"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	path := filepath.Join(dir, ".env")
	written := waitForFile(path, "A=1\n", 5*time.Second)
	if err := stop(); err != nil {
		t.Fatalf("watchNATS: %v", err)
	}
	if !written {
		got, _ := os.ReadFile(path)
		t.Fatalf("file not written after event, content %q", got)
	}
	if dl.calls != 1 {
		t.Errorf("downloads = %d, want 1", dl.calls)
	}
}

func TestFileWatcher_SteadyStreamStillRefreshes(t *testing.T) {
	url := startNATS(t)
	dir := t.TempDir()
	dl := &fakeDownloader{content: []byte("A=1\n")}
	w := &fileWatcher{
		dl:   dl,
		opts: downloadOptions{ProjectID: "prj-1", ConfigID: "cfg-1", Format: export.FormatEnv, Directory: dir},
		out:  &bytes.Buffer{},
	}
	stop := runWatcher(t, w, url)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	// Events arrive well inside the debounce window for twice the max wait.
	quit := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		end := time.After(2 * watchMaxWait)
		for {
			_ = pub.Publish(context.Background(), events.TopicValueSet, events.ValueChanged{ProjectID: "prj-1", ConfigID: "cfg-1", Key: "A"})
			_ = pub.Flush()
			select {
			case <-quit:
				return
			case <-end:
				return
			case <-ticker.C:
			}
		}
	}()

	start := time.Now()
	written := waitForFile(filepath.Join(dir, ".env"), "A=1\n", 2*watchMaxWait)
	elapsed := time.Since(start)
	close(quit)
	<-published
	if err := stop(); err != nil {
		t.Fatalf("watchNATS: %v", err)
	}
	if !written {
		t.Fatal("file not written while events kept arriving")
	}
	if limit := watchMaxWait + 500*time.Millisecond; elapsed > limit {
		t.Errorf("first write after %v, want within %v", elapsed, limit)
	}
}

func TestFileWatcher_IgnoresOtherProjects(t *testing.T) {
	url := startNATS(t)
	dl := &fakeDownloader{content: []byte("A=1\n")}
	w := &fileWatcher{
		dl:   dl,
		opts: downloadOptions{ProjectID: "prj-1", ConfigID: "cfg-1", Format: export.FormatEnv, Directory: t.TempDir()},
		out:  &bytes.Buffer{},
	}

	stop := runWatcher(t, w, url)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()
	for i := 0; i < 10; i++ {
		_ = pub.Publish(context.Background(), events.TopicConfigUpdated, events.NewConfigChanged(&model.Config{ID: "cfg-9", ProjectID: "prj-other"}, ""))
		time.Sleep(30 * time.Millisecond)
	}
	_ = pub.Flush()
	time.Sleep(300 * time.Millisecond)
	if err := stop(); err != nil {
		t.Fatalf("watchNATS: %v", err)
	}

	if dl.calls != 0 {
		t.Fatalf("downloads = %d, want 0 for foreign project events", dl.calls)
	}
}
