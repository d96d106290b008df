/*
gate.go - Period gate for date-gated batch jobs

PURPOSE:
  Decides whether a recurring job keyed by a period identifier has already
  run, and marks it as run when it proceeds. Persisted alongside the data
  it gates, so it survives restarts and is visible to every caller.

STATE MACHINE (per job key):
  NeverRun                 -> Run(period, count=1)
  Run(P, n), new period P2 -> Run(P2, count=1)
  Run(P, n), same period   -> proceed=false unless forced
  Run(P, n), forced        -> Run(P, n+1)

ATOMICITY:
  CheckAndMark must run inside the same transaction as the batch mutation
  it gates: either all eligible employees are updated and the marker is
  advanced, or nothing changes.
*/
package ledger

import (
	"context"
	"time"
)

// RunInfo is the already-run metadata handed back when the gate refuses.
type RunInfo struct {
	Period    string
	RunCount  int
	LastRunAt time.Time
	LastRunBy string
}

// CheckAndMark implements the period gate against the given store.
// When it returns proceed=true the marker has been advanced and the caller
// must perform the batch mutation in the same transaction.
// When it returns proceed=false nothing was written; info carries the
// existing marker's metadata for the caller to display.
func CheckAndMark(ctx context.Context, s Store, key, period, actor string, forced bool, now time.Time) (proceed bool, info *RunInfo, err error) {
	marker, err := s.GetMarker(ctx, key)
	if err != nil {
		return false, nil, err
	}

	switch {
	case marker == nil || marker.Period != period:
		marker = &RunMarker{Key: key, Period: period, RunCount: 1, LastRunAt: now, LastRunBy: actor}

	case !forced:
		return false, &RunInfo{
			Period:    marker.Period,
			RunCount:  marker.RunCount,
			LastRunAt: marker.LastRunAt,
			LastRunBy: marker.LastRunBy,
		}, nil

	default:
		marker.RunCount++
		marker.LastRunAt = now
		marker.LastRunBy = actor
	}

	if err := s.SaveMarker(ctx, *marker); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}
