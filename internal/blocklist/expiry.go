package blocklist

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"fwblock/internal/domain"
)

const day = 24 * time.Hour

// SweepOptions controls a sweep. HardDelete removes stale records instead of
// marking them expired; DryRun only counts them.
type SweepOptions struct {
	HardDelete bool
	DryRun     bool
}

// ExpiryEngine decides when active records go stale and moves them out of the
// active set.
type ExpiryEngine struct {
	policy Policy
}

func NewExpiryEngine(policy Policy) *ExpiryEngine {
	return &ExpiryEngine{policy: policy}
}

// ResolveTTLDays returns the record's effective TTL in days; zero means never.
func (e *ExpiryEngine) ResolveTTLDays(rec *domain.BlockRecord) int {
	return e.policy.ResolveTTLDays(rec)
}

// ExpiresAt returns when the record becomes stale, or false when it never does.
func (e *ExpiryEngine) ExpiresAt(rec *domain.BlockRecord) (time.Time, bool) {
	return expiresAt(e.policy, rec)
}

// IsStale reports whether an active record has outlived its TTL at now.
func (e *ExpiryEngine) IsStale(rec *domain.BlockRecord, now time.Time) bool {
	if !rec.IsActive() {
		return false
	}
	at, ok := e.ExpiresAt(rec)
	return ok && !now.Before(at)
}

// Stale returns the active records that a sweep at now would touch.
func (e *ExpiryEngine) Stale(s *Store, now time.Time) []domain.BlockRecord {
	return s.filter(func(rec *domain.BlockRecord) bool {
		return e.IsStale(rec, now)
	})
}

// Sweep expires (or deletes) every stale active record and persists when
// anything changed. It returns the number of records affected.
func (e *ExpiryEngine) Sweep(ctx context.Context, s *Store, now time.Time, opts SweepOptions) (int, error) {
	if opts.DryRun {
		return len(e.Stale(s, now)), nil
	}

	count := s.expire(func(rec *domain.BlockRecord) bool {
		return e.IsStale(rec, now)
	}, opts.HardDelete, now)

	if count == 0 {
		return 0, nil
	}

	log.Info("Sweep completed", "count", count, "hard_delete", opts.HardDelete)
	return count, s.Save(ctx)
}

func expiresAt(policy Policy, rec *domain.BlockRecord) (time.Time, bool) {
	days := policy.ResolveTTLDays(rec)
	if days <= 0 {
		return time.Time{}, false
	}
	return rec.DtAdded.Add(time.Duration(days) * day), true
}
