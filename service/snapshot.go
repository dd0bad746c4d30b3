package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = time.Minute

// SnapshotConfig tunes a SnapshotService
type SnapshotConfig struct {
	// DefaultSpreadsheet is used when a caller passes an empty key
	DefaultSpreadsheet string
	Worksheet          string
	TTL                time.Duration
	// MaxSnapshots bounds the number of spreadsheets kept, 0 = unlimited
	MaxSnapshots int
	FetchTimeout time.Duration
	// KeyFunc canonicalizes spreadsheet references, e.g. URL to ID
	KeyFunc func(string) string
}

type snapshotEntry struct {
	snap  *model.Snapshot
	stale bool
	// seq orders loads by fetch start
	seq uint64
}

// SnapshotService keeps the last normalized snapshot per spreadsheet and
// refreshes it from a RowSource. Readers always see a complete snapshot;
// a refresh swaps the pointer under the lock.
type SnapshotService struct {
	source     RowSource
	normalizer *Normalizer
	cfg        SnapshotConfig
	now        func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*snapshotEntry
	seq       uint64
	group     singleflight.Group
}

func NewSnapshotService(source RowSource, normalizer *Normalizer, cfg SnapshotConfig) *SnapshotService {
	if cfg.MaxSnapshots < 0 {
		cfg.MaxSnapshots = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &SnapshotService{
		source:     source,
		normalizer: normalizer,
		cfg:        cfg,
		now:        time.Now,
		snapshots:  make(map[string]*snapshotEntry),
	}
}

// Key resolves an optional spreadsheet reference to the snapshot key
func (s *SnapshotService) Key(spreadsheet string) string {
	k := strings.TrimSpace(spreadsheet)
	if k == "" {
		k = s.cfg.DefaultSpreadsheet
	}
	if k != "" && s.cfg.KeyFunc != nil {
		k = s.cfg.KeyFunc(k)
	}
	return k
}

// Get returns the snapshot for key, refreshing it when it is older than the
// TTL or was invalidated. If that refresh fails and an earlier snapshot
// exists, the earlier snapshot is returned together with the error.
func (s *SnapshotService) Get(ctx context.Context, key string) (*model.Snapshot, error) {
	key = s.Key(key)
	if key == "" {
		return nil, invalidArgument("no spreadsheet configured")
	}

	s.mu.RLock()
	entry := s.snapshots[key]
	s.mu.RUnlock()

	if entry != nil && !entry.stale && s.now().Sub(entry.snap.FetchedAt) < s.cfg.TTL {
		return entry.snap, nil
	}

	snap, err := s.load(ctx, key, false)
	if err != nil {
		if entry != nil {
			return entry.snap, err
		}
		return nil, err
	}
	return snap, nil
}

// Refresh bypasses every cache layer and reloads key from the source. On
// failure the previous snapshot (possibly nil) is returned with the error.
func (s *SnapshotService) Refresh(ctx context.Context, key string) (*model.Snapshot, error) {
	key = s.Key(key)
	if key == "" {
		return nil, invalidArgument("no spreadsheet configured")
	}

	snap, err := s.load(ctx, key, true)
	if err != nil {
		prev, _ := s.Peek(key)
		return prev, err
	}
	return snap, nil
}

// Invalidate marks the snapshot for key stale so the next Get reloads it
func (s *SnapshotService) Invalidate(key string) {
	key = s.Key(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.snapshots[key]; ok {
		entry.stale = true
	}
}

// Peek returns the last snapshot for key regardless of its age
func (s *SnapshotService) Peek(key string) (*model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.snapshots[s.Key(key)]
	if !ok {
		return nil, false
	}
	return entry.snap, true
}

// Keys lists the spreadsheets currently held, sorted
func (s *SnapshotService) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.snapshots))
	for k := range s.snapshots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of snapshots held
func (s *SnapshotService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Run reloads every known snapshot each interval until ctx is done.
// Failures are logged and leave the previous snapshot in place.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range s.Keys() {
				if _, err := s.load(ctx, key, false); err != nil {
					logger.Warn(ctx, "Scheduled refresh failed", "spreadsheet", key, "error", err)
				}
			}
		}
	}
}

// load fetches and normalizes key. Concurrent loads of the same key share
// one fetch. The fetch is detached from the caller's cancellation so that
// callers waiting on the shared result are not failed by another's cancel.
func (s *SnapshotService) load(ctx context.Context, key string, force bool) (*model.Snapshot, error) {
	groupKey := key
	if force {
		groupKey = "force|" + key
	}

	v, err, _ := s.group.Do(groupKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()
		fetchCtx = logger.WithValue(fetchCtx, logger.SpreadsheetKey, key)

		if force {
			if f, ok := s.source.(Forgetter); ok {
				if err := f.Forget(fetchCtx, key, s.cfg.Worksheet); err != nil {
					logger.Warn(fetchCtx, "Failed to drop cached rows", "error", err)
				}
			}
		}

		seq := s.nextSeq()
		start := s.now()
		rows, err := s.source.FetchRows(fetchCtx, key, s.cfg.Worksheet)
		if err != nil {
			logger.Error(fetchCtx, "Failed to fetch worksheet", "worksheet", s.cfg.Worksheet, "error", err)
			return nil, err
		}

		leads, issues := s.normalizer.Normalize(rows)
		for _, issue := range issues {
			logger.Debug(fetchCtx, "Normalization issue",
				"row", issue.Row,
				"column", issue.Column,
				"value", issue.Value,
				"reason", issue.Reason,
			)
		}

		snap := &model.Snapshot{
			Spreadsheet: key,
			Worksheet:   s.cfg.Worksheet,
			Leads:       leads,
			FetchedAt:   s.now(),
			Issues:      len(issues),
		}
		if current := s.store(key, snap, seq); current != snap {
			logger.Info(fetchCtx, "Discarding load overtaken by a newer refresh", "leads", len(leads))
			return current, nil
		}

		logger.Info(fetchCtx, "Snapshot refreshed",
			"leads", len(leads),
			"issues", len(issues),
			"duration", s.now().Sub(start),
		)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	snap, ok := v.(*model.Snapshot)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot type %T", v)
	}
	return snap, nil
}

func (s *SnapshotService) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// store saves snap unless a load that started later already stored its
// result, and returns the snapshot now held for key
func (s *SnapshotService) store(key string, snap *model.Snapshot, seq uint64) *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.snapshots[key]; ok && current.seq > seq {
		return current.snap
	}
	s.snapshots[key] = &snapshotEntry{snap: snap, seq: seq}
	s.evictIfNeeded(key)
	return snap
}

// evictIfNeeded drops the oldest snapshots beyond MaxSnapshots, never keep.
// Must be called with lock held
func (s *SnapshotService) evictIfNeeded(keep string) {
	if s.cfg.MaxSnapshots <= 0 || len(s.snapshots) <= s.cfg.MaxSnapshots {
		return
	}

	keys := make([]string, 0, len(s.snapshots))
	for k := range s.snapshots {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.snapshots[keys[i]].snap.FetchedAt.Before(s.snapshots[keys[j]].snap.FetchedAt)
	})

	removeCount := len(s.snapshots) - s.cfg.MaxSnapshots
	for i := 0; i < removeCount && i < len(keys); i++ {
		logger.Info(context.Background(), "Evicting old snapshot",
			"spreadsheet", keys[i],
			"fetched_at", s.snapshots[keys[i]].snap.FetchedAt,
		)
		delete(s.snapshots, keys[i])
	}
}
