package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/store/memstore"
)

// recordingDestination keeps the last backup it was given.
type recordingDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *recordingDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	d.last.Store(append([]byte(nil), data...))
	return d.err
}

func (d *recordingDestination) String() string { return "recording" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_StartStop(t *testing.T) {
	dest := &recordingDestination{}
	sched := NewScheduler(seedStore(t), nil, []Destination{dest}, 20*time.Millisecond, discardLogger())
	sched.Start()

	deadline := time.Now().Add(2 * time.Second)
	for dest.writes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sched.Stop()

	data, _ := dest.last.Load().([]byte)
	// header, two projects, two configs
	if lines := nonEmptyLines(string(data)); len(lines) != 5 {
		t.Fatalf("backup has %d lines, want 5", len(lines))
	}
	if n := dest.writes.Load(); n != 1 {
		t.Errorf("writes = %d, want 1 while nothing changes", n)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	NewScheduler(memstore.New(), nil, nil, time.Minute, nil).Stop()
}

func TestSyncOnce_SkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	ms := seedStore(t)
	a, b := &recordingDestination{}, &recordingDestination{}
	sched := NewScheduler(ms, nil, []Destination{a, b}, time.Minute, discardLogger())

	for range 3 {
		if err := sched.SyncOnce(ctx); err != nil {
			t.Fatalf("SyncOnce: %v", err)
		}
	}
	if a.writes.Load() != 1 || b.writes.Load() != 1 {
		t.Fatalf("writes = %d/%d, want 1/1", a.writes.Load(), b.writes.Load())
	}

	if err := ms.CreateProject(ctx, &model.Project{ID: "prj-new", Name: "new"}); err != nil {
		t.Fatal(err)
	}
	if err := sched.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce after change: %v", err)
	}
	if a.writes.Load() != 2 || b.writes.Load() != 2 {
		t.Fatalf("writes after change = %d/%d, want 2/2", a.writes.Load(), b.writes.Load())
	}
}

func TestSyncOnce_DestinationFailure(t *testing.T) {
	boom := errors.New("bucket unavailable")
	failing := &recordingDestination{err: boom}
	ok := &recordingDestination{}
	sched := NewScheduler(memstore.New(), nil, []Destination{failing, ok}, time.Minute, discardLogger())

	err := sched.SyncOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("SyncOnce error = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "recording") {
		t.Errorf("error %q does not name the destination", err)
	}
	if ok.writes.Load() != 1 {
		t.Fatal("a failing destination must not stop the others")
	}

	// A partial failure is retried on the next run.
	failing.err = nil
	if err := sched.SyncOnce(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if failing.writes.Load() != 2 {
		t.Errorf("failing destination writes = %d, want 2", failing.writes.Load())
	}
}

func TestSyncOnce_SealedSkipsUnchanged(t *testing.T) {
	key, err := crypt.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	box, err := crypt.ParseKey(key)
	if err != nil {
		t.Fatal(err)
	}
	dest := &recordingDestination{}
	sched := NewScheduler(seedStore(t), box, []Destination{dest}, time.Minute, discardLogger())

	for range 2 {
		if err := sched.SyncOnce(context.Background()); err != nil {
			t.Fatalf("SyncOnce: %v", err)
		}
	}
	if dest.writes.Load() != 1 {
		t.Fatalf("writes = %d, want 1", dest.writes.Load())
	}
	data, _ := dest.last.Load().([]byte)
	if strings.Contains(string(data), "postgres://db") {
		t.Error("sealed backup contains a plaintext value")
	}
}

func TestContentDigest_IgnoresHeader(t *testing.T) {
	a := contentDigest([]byte(`{"type":"header","data":{"timestamp":"1"}}` + "\n" + `{"type":"project"}` + "\n"))
	b := contentDigest([]byte(`{"type":"header","data":{"timestamp":"2"}}` + "\n" + `{"type":"project"}` + "\n"))
	c := contentDigest([]byte(`{"type":"header","data":{"timestamp":"2"}}` + "\n" + `{"type":"config"}` + "\n"))
	if a != b {
		t.Error("header changes must not change the digest")
	}
	if b == c {
		t.Error("body changes must change the digest")
	}
}
