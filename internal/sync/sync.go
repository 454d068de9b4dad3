// Package sync backs certificates up to object storage and archives
// generated documents.
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

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/certflow/internal/store"
)

// Destination receives full JSONL backups.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Scheduler writes a backup to every destination on a fixed interval. A
// backup whose certificate records match the last successful one is skipped.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	clock        clockwork.Clock

	mu   sync.Mutex
	last [sha256.Size]byte // digest of the last fully delivered backup

	stop chan struct{}
	done chan struct{}
}

// NewScheduler returns a stopped scheduler. A nil clock means the real clock.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger.With("component", "backup"),
		clock:        clock,
	}
}

// Start backs up immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.stop
		cancel()
	}()
	go func() {
		defer close(s.done)
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("backup failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}
		}
	}()
}

// Stop cancels a running backup and waits for the loop to exit.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// SyncOnce exports the store and writes it to every destination. It reports
// whether anything was written. Every destination is tried; their failures
// are joined. An unchanged export is not written again.
func (s *Scheduler) SyncOnce(ctx context.Context) (bool, error) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf, s.clock.Now()); err != nil {
		return false, fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()
	digest := recordsDigest(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if digest == s.last {
		s.logger.Debug("backup unchanged")
		return false, nil
	}

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return true, err
	}
	s.last = digest
	s.logger.Info("backup written", "destinations", len(s.destinations), "bytes", len(data))
	return true, nil
}

// recordsDigest hashes an export without its header line, which carries the
// export time.
func recordsDigest(data []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return sha256.Sum256(data)
}
