package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"algo-trader/internal/logging"
	"algo-trader/internal/models"
)

// SnapshotVersion identifies the on-disk snapshot schema.
const SnapshotVersion = 1

// Snapshot is the serializable view of the ledger used by the durability
// layer. It must round-trip exactly for every field that affects risk or P&L.
type Snapshot struct {
	Version   int                        `json:"version"`
	SavedAt   time.Time                  `json:"saved_at"`
	Cash      float64                    `json:"cash"`
	Positions map[string]models.Position `json:"positions"`
	Stats     models.TradeStats          `json:"stats"`
	DaySeq    map[string]int             `json:"day_seq"`
}

// Snapshot captures a consistent view of cash, positions, and statistics
// under the same lock that guards mutations.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]models.Position, len(l.positions))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}
	daySeq := make(map[string]int, len(l.daySeq))
	for day, seq := range l.daySeq {
		daySeq[day] = seq
	}

	return Snapshot{
		Version:   SnapshotVersion,
		SavedAt:   l.now(),
		Cash:      l.cash,
		Positions: positions,
		Stats:     l.stats,
		DaySeq:    daySeq,
	}
}

// Restore replaces ledger state with the snapshot's contents. Pending
// reservations are discarded; they never survive a restart.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = s.Cash
	l.stats = s.Stats
	l.positions = make(map[string]*models.Position, len(s.Positions))
	for symbol, pos := range s.Positions {
		p := pos
		l.positions[symbol] = &p
	}
	l.daySeq = make(map[string]int, len(s.DaySeq))
	for day, seq := range s.DaySeq {
		l.daySeq[day] = seq
	}
	l.inflight = make(map[string]*pending)
}

// Snapshotter persists ledger snapshots with throttling and atomic writes.
type Snapshotter struct {
	mu          sync.Mutex
	ledger      *Ledger
	path        string
	minInterval time.Duration
	dirty       bool
	lastSave    time.Time
	now         func() time.Time
	logger      zerolog.Logger
}

// NewSnapshotter creates a snapshotter writing to path at most once per
// minInterval unless forced.
func NewSnapshotter(l *Ledger, path string, minInterval time.Duration, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		ledger:      l,
		path:        path,
		minInterval: minInterval,
		now:         time.Now,
		logger:      logger,
	}
}

// MarkDirty records that ledger state has changed since the last save.
func (s *Snapshotter) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// SaveIfNeeded writes a snapshot when the ledger is dirty and the minimum
// interval has elapsed, or unconditionally when force is set. It reports
// whether a save happened.
func (s *Snapshotter) SaveIfNeeded(force bool) (bool, error) {
	s.mu.Lock()
	if !force {
		if !s.dirty || s.now().Sub(s.lastSave) < s.minInterval {
			s.mu.Unlock()
			return false, nil
		}
	}
	s.mu.Unlock()

	snap := s.ledger.Snapshot()
	if err := writeAtomic(s.path, snap); err != nil {
		return false, fmt.Errorf("writing snapshot: %w", err)
	}

	s.mu.Lock()
	s.dirty = false
	s.lastSave = s.now()
	s.mu.Unlock()

	logging.LogSnapshot(s.logger, s.path, len(snap.Positions), snap.Cash, force)
	return true, nil
}

// Load restores the ledger from the most recent valid snapshot. A missing or
// unreadable snapshot is not fatal: the ledger keeps its configured initial
// state and Load reports false.
func (s *Snapshotter) Load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Snapshot unreadable, starting fresh")
		return false, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Snapshot corrupt, starting fresh")
		return false, nil
	}
	if snap.Version != SnapshotVersion {
		s.logger.Warn().Int("version", snap.Version).Msg("Snapshot version mismatch, starting fresh")
		return false, nil
	}

	s.ledger.Restore(snap)
	return true, nil
}

// writeAtomic serializes the snapshot to a temp file and renames it into
// place so a crash mid-write never exposes a truncated snapshot.
func writeAtomic(path string, snap Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
