package session

import (
	"encoding/json"
	"time"
)

// snapshotSession is the on-the-wire shape of one session's state.
type snapshotSession struct {
	JobID       string    `json:"jobId"`
	Tokens      uint64    `json:"tokens"`
	Checkpoints int       `json:"checkpoints"`
	Processed   []int     `json:"processed"`
	OpenedAt    time.Time `json:"openedAt"`
	LastActive  time.Time `json:"lastActivityAt"`
	Settled     bool      `json:"settled"`
}

// Snapshot is the full persistence envelope: per-session counters, the
// pending FIFO, and the config the engine was running under.
type Snapshot struct {
	Config   Config                      `json:"config"`
	Sessions map[string]snapshotSession  `json:"sessions"`
	Pending  []CheckpointItem            `json:"pending"`
}

// Serialize produces a full snapshot suitable for Deserialize on a fresh
// Engine, used across restarts so in-flight sessions are not silently lost.
func (e *Engine) Serialize() ([]byte, error) {
	e.mu.Lock()
	pending := make([]CheckpointItem, len(e.pending))
	copy(pending, e.pending)
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	snap := Snapshot{
		Config:   e.cfg,
		Sessions: make(map[string]snapshotSession, len(ids)),
		Pending:  pending,
	}
	for _, id := range ids {
		s := e.session(id, false)
		s.mu.Lock()
		processed := make([]int, 0, len(s.processed))
		for idx := range s.processed {
			processed = append(processed, idx)
		}
		snap.Sessions[id] = snapshotSession{
			JobID:       s.jobID,
			Tokens:      s.tokens,
			Checkpoints: s.checkpoints,
			Processed:   processed,
			OpenedAt:    s.openedAt,
			LastActive:  s.lastActive,
			Settled:     s.settled,
		}
		s.mu.Unlock()
	}
	return json.Marshal(snap)
}

// Deserialize restores the engine's in-memory state from a Serialize
// snapshot, overwriting whatever live sessions and pending queue the engine
// currently holds. Subscribers are preserved.
func (e *Engine) Deserialize(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	sessions := make(map[string]*sessionState, len(snap.Sessions))
	for id, ss := range snap.Sessions {
		processed := make(map[int]bool, len(ss.Processed))
		for _, idx := range ss.Processed {
			processed[idx] = true
		}
		sessions[id] = &sessionState{
			jobID:       ss.JobID,
			tokens:      ss.Tokens,
			checkpoints: ss.Checkpoints,
			processed:   processed,
			openedAt:    ss.OpenedAt,
			lastActive:  ss.LastActive,
			settled:     ss.Settled,
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if snap.Config.Threshold > 0 {
		e.cfg = snap.Config
	}
	e.sessions = sessions
	e.pending = snap.Pending
	return nil
}
