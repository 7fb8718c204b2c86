package system

import (
	"fmt"
	"strconv"
)

// PersistenceSystem decides when the daemon saves a snapshot. It counts
// frames in the post-update phase and raises Due every interval frames; the
// counter travels with snapshots so a restart keeps the cadence.
type PersistenceSystem struct {
	interval uint64
	count    uint64
	due      bool
}

// NewPersistenceSystem saves every intervalFrames frames; 0 disables it.
func NewPersistenceSystem(intervalFrames uint64) *PersistenceSystem {
	return &PersistenceSystem{interval: intervalFrames}
}

func (s *PersistenceSystem) Name() string { return "persistence" }

func (s *PersistenceSystem) OnPostUpdate(uint64) error {
	if s.interval == 0 {
		return nil
	}
	s.count++
	if s.count >= s.interval {
		s.count = 0
		s.due = true
	}
	return nil
}

// Due reports and clears a pending save request. Call between frames.
func (s *PersistenceSystem) Due() bool {
	d := s.due
	s.due = false
	return d
}

func (s *PersistenceSystem) RestoreID() string { return "persistence" }

func (s *PersistenceSystem) ExportState() ([]byte, error) {
	return []byte(strconv.FormatUint(s.count, 10)), nil
}

func (s *PersistenceSystem) ImportState(data []byte) error {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("persistence state: %w", err)
	}
	s.count = n
	return nil
}
