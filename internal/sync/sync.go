// Package sync periodically writes a JSONL backup of all projects and
// configs to S3 or a git repository.
package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/envtree/internal/crypt"
	"github.com/alfredjeanlab/envtree/internal/store"
)

// Destination receives each backup.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the store on an interval and writes the backup to
// every destination. A tick whose content matches the last fully written
// backup is skipped.
type Scheduler struct {
	store        store.Store
	box          *crypt.Box
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	// last is the digest of the last backup every destination accepted.
	last [sha256.Size]byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler seals config values with box when it is non-nil. A nil
// logger uses slog.Default().
func NewScheduler(s store.Store, box *crypt.Box, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		box:          box,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start syncs once immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight sync.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce writes a fresh backup to every destination, attempting all of
// them and joining their errors. It does nothing when the projects and
// configs are unchanged since the last successful run.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	var plain bytes.Buffer
	if err := ExportJSONL(ctx, s.store, nil, &plain); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	digest := contentDigest(plain.Bytes())
	if digest == s.last {
		s.logger.Debug("sync skipped, backup unchanged")
		return nil
	}

	data := plain.Bytes()
	if s.box != nil {
		// Sealing uses a random nonce, so change detection runs on the
		// plaintext and the sealed form is produced separately.
		var sealed bytes.Buffer
		if err := ExportJSONL(ctx, s.store, s.box, &sealed); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		data = sealed.Bytes()
	}

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Warn("sync destination failed", "destination", describe(dest), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", describe(dest), err))
		}
	}
	if len(errs) == 0 {
		s.last = digest
	}
	s.logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data), "failed", len(errs))
	return errors.Join(errs...)
}

// contentDigest hashes a backup without its header line, which carries
// the export timestamp.
func contentDigest(data []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return sha256.Sum256(data)
}

func describe(d Destination) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", d)
}
