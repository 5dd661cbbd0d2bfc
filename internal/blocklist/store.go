package blocklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"fwblock/internal/domain"
)

// Outcome describes what Insert did with a candidate.
type Outcome int

const (
	Inserted Outcome = iota
	Reactivated
	AlreadyPresent
	AlreadyCovered
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Reactivated:
		return "reactivated"
	case AlreadyPresent:
		return "already present"
	case AlreadyCovered:
		return "already covered"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Changed reports whether the outcome mutated the list.
func (o Outcome) Changed() bool {
	return o == Inserted || o == Reactivated
}

// Candidate is an address proposed for blocking.
type Candidate struct {
	Address   string
	PortScope string
	Metadata  domain.Metadata
}

// Persister stores the full record list.
type Persister interface {
	Save(ctx context.Context, records []domain.BlockRecord) error
}

// Store owns the block records and keeps the active set free of redundant
// entries.
type Store struct {
	records   []domain.BlockRecord
	policy    Policy
	persister Persister
	now       func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for dtAdded.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store. persister may be nil, in which case
// mutations stay in memory.
func NewStore(policy Policy, persister Persister, opts ...Option) *Store {
	s := &Store{
		policy:    policy,
		persister: persister,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy the store was built with.
func (s *Store) Policy() Policy {
	return s.policy
}

// Load replaces the records with the given list, recomputing derived ranges.
// Records whose address no longer parses are dropped; their count is returned.
func (s *Store) Load(records []domain.BlockRecord) int {
	loaded := make([]domain.BlockRecord, 0, len(records))
	dropped := 0

	for _, rec := range records {
		rng, err := ParseRange(rec.Address)
		if err != nil {
			log.Warn("Dropping stored record with invalid address", "address", rec.Address, "error", err)
			dropped++
			continue
		}
		rec.Low, rec.High = rng.Low, rng.High

		switch rec.Status {
		case domain.StatusActive:
			rec.DtExpired = nil
		case domain.StatusExpired:
			if rec.DtExpired == nil {
				at := rec.DtAdded
				rec.DtExpired = &at
			}
		default:
			log.Warn("Unknown record status, treating as active", "address", rec.Address, "status", rec.Status)
			rec.ClearExpiry()
		}

		loaded = append(loaded, rec)
	}

	s.records = loaded
	return dropped
}

// Len returns the number of records, active and expired.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of every record in list order.
func (s *Store) Records() []domain.BlockRecord {
	return s.filter(func(*domain.BlockRecord) bool { return true })
}

// Active returns a copy of the active records in list order.
func (s *Store) Active() []domain.BlockRecord {
	return s.filter((*domain.BlockRecord).IsActive)
}

// Expired returns a copy of the expired records in list order.
func (s *Store) Expired() []domain.BlockRecord {
	return s.filter((*domain.BlockRecord).IsExpired)
}

// FindByPrefix returns records whose address starts with prefix. This is a
// plain string match, not a containment query.
func (s *Store) FindByPrefix(prefix string) []domain.BlockRecord {
	return s.filter(func(rec *domain.BlockRecord) bool {
		return strings.HasPrefix(rec.Address, prefix)
	})
}

// FindByCountry returns records whose country equals code.
func (s *Store) FindByCountry(code string) []domain.BlockRecord {
	return s.filter(func(rec *domain.BlockRecord) bool {
		return rec.Country == code
	})
}

// Find returns the first record with exactly this address and port scope,
// preferring an active one.
func (s *Store) Find(address, portScope string) (domain.BlockRecord, bool) {
	address = strings.TrimSpace(address)
	var (
		found domain.BlockRecord
		ok    bool
	)
	for i := range s.records {
		rec := &s.records[i]
		if rec.Address != address || rec.PortScope != portScope {
			continue
		}
		if rec.IsActive() {
			return cloneRecord(rec), true
		}
		if !ok {
			found, ok = cloneRecord(rec), true
		}
	}
	return found, ok
}

// Insert adds a candidate to the list, then sorts and persists. A returned
// *PersistenceError leaves the mutation in memory.
func (s *Store) Insert(ctx context.Context, c Candidate) (Outcome, error) {
	outcome, err := s.insert(c)
	if err != nil {
		return outcome, err
	}
	if !outcome.Changed() {
		return outcome, nil
	}
	return outcome, s.Save(ctx)
}

// ImportResult is the per-candidate result of Import.
type ImportResult struct {
	Candidate Candidate
	Outcome   Outcome
	Err       error
}

// Import inserts candidates in bulk mode: sorting and saving happen once at
// the end, and only when at least one candidate changed the list.
func (s *Store) Import(ctx context.Context, candidates []Candidate) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(candidates))
	changed := false

	for _, c := range candidates {
		outcome, err := s.insert(c)
		results = append(results, ImportResult{Candidate: c, Outcome: outcome, Err: err})
		if err == nil && outcome.Changed() {
			changed = true
		}
	}

	if !changed {
		return results, nil
	}
	return results, s.Save(ctx)
}

func (s *Store) insert(c Candidate) (Outcome, error) {
	address := strings.TrimSpace(c.Address)
	scope := strings.TrimSpace(c.PortScope)

	if scope != "" && !s.policy.HasPortGroup(scope) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPortGroup, scope)
	}

	reason, err := s.policy.ResolveReason(c.Metadata.Reason, scope)
	if err != nil {
		return 0, err
	}

	rng, err := ParseRange(address)
	if err != nil {
		return 0, err
	}

	if s.isPresent(address, scope) {
		return AlreadyPresent, nil
	}
	if covering, ok := s.coveringRecord(address, scope, rng); ok {
		log.Debug("Candidate already covered", "address", address, "covered_by", covering.Address)
		return AlreadyCovered, nil
	}

	s.removeSuperseded(address, scope, rng)

	meta := c.Metadata
	meta.Reason = reason
	now := s.now().UTC()

	if rec := s.findExpired(address, scope); rec != nil {
		reactivate(rec, meta, now)
		log.Info("Record reactivated", "address", address, "port_scope", scope)
		return Reactivated, nil
	}

	s.records = append(s.records, domain.BlockRecord{
		Address:   address,
		PortScope: scope,
		DtAdded:   now,
		Days:      copyDays(meta.Days),
		Country:   meta.Country,
		Org:       meta.Org,
		Reason:    meta.Reason,
		Low:       rng.Low,
		High:      rng.High,
	})
	log.Info("Record inserted", "address", address, "port_scope", scope)
	return Inserted, nil
}

// scopeCovers reports whether a record scoped to existing already blocks the
// ports of candidate. An unscoped record blocks every port.
func scopeCovers(existing, candidate string) bool {
	return existing == "" || existing == candidate
}

func (s *Store) isPresent(address, scope string) bool {
	for i := range s.records {
		rec := &s.records[i]
		if rec.IsActive() && rec.Address == address && scopeCovers(rec.PortScope, scope) {
			return true
		}
	}
	return false
}

func (s *Store) coveringRecord(address, scope string, rng Range) (*domain.BlockRecord, bool) {
	for i := range s.records {
		rec := &s.records[i]
		if !rec.IsActive() || rec.Address == address {
			continue
		}
		if recordRange(rec).Contains(rng) && scopeCovers(rec.PortScope, scope) {
			return rec, true
		}
	}
	return nil, false
}

// removeSuperseded drops active records the candidate makes redundant. A
// scoped record sharing the candidate's exact address is kept even when the
// candidate is unscoped.
func (s *Store) removeSuperseded(address, scope string, rng Range) {
	kept := s.records[:0]
	for _, rec := range s.records {
		if !rec.IsActive() || !rng.Contains(recordRange(&rec)) || !scopeCovers(scope, rec.PortScope) {
			kept = append(kept, rec)
			continue
		}
		if rec.Address == address {
			log.Warn("Existing record is redundant with the new entry but is kept",
				"address", rec.Address, "port_scope", rec.PortScope)
			kept = append(kept, rec)
			continue
		}
		log.Info("Record superseded", "address", rec.Address, "port_scope", rec.PortScope, "by", address)
	}
	clear(s.records[len(kept):])
	s.records = kept
}

func (s *Store) findExpired(address, scope string) *domain.BlockRecord {
	for i := range s.records {
		rec := &s.records[i]
		if rec.IsExpired() && rec.Address == address && rec.PortScope == scope {
			return rec
		}
	}
	return nil
}

func reactivate(rec *domain.BlockRecord, meta domain.Metadata, now time.Time) {
	rec.ClearExpiry()
	rec.Days = copyDays(meta.Days)
	if meta.Country != "" {
		rec.Country = meta.Country
	}
	if meta.Org != "" {
		rec.Org = meta.Org
	}
	if meta.Reason != "" {
		rec.Reason = meta.Reason
	}
	rec.DtAdded = now
}

// Remove deletes the active records with exactly this address and port scope.
// Expired records are never touched.
func (s *Store) Remove(ctx context.Context, address, portScope string) (bool, error) {
	address = strings.TrimSpace(address)
	portScope = strings.TrimSpace(portScope)

	before := len(s.records)
	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.IsActive() && rec.Address == address && rec.PortScope == portScope {
			continue
		}
		kept = append(kept, rec)
	}
	clear(s.records[len(kept):])
	s.records = kept

	if len(kept) == before {
		return false, nil
	}
	log.Info("Record removed", "address", address, "port_scope", portScope, "count", before-len(kept))
	return true, s.Save(ctx)
}

// Save sorts the list and hands it to the persister.
func (s *Store) Save(ctx context.Context) error {
	SortRecords(s.records)
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, s.Records()); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// expire applies stale to every active record and either deletes the matches
// or marks them expired at now. It returns how many records changed.
func (s *Store) expire(stale func(*domain.BlockRecord) bool, hardDelete bool, now time.Time) int {
	count := 0
	kept := s.records[:0]
	for _, rec := range s.records {
		if !rec.IsActive() || !stale(&rec) {
			kept = append(kept, rec)
			continue
		}
		count++
		if hardDelete {
			continue
		}
		rec.MarkExpired(now)
		kept = append(kept, rec)
	}
	clear(s.records[len(kept):])
	s.records = kept
	return count
}

func (s *Store) filter(match func(*domain.BlockRecord) bool) []domain.BlockRecord {
	out := make([]domain.BlockRecord, 0, len(s.records))
	for i := range s.records {
		if match(&s.records[i]) {
			out = append(out, cloneRecord(&s.records[i]))
		}
	}
	return out
}

func recordRange(rec *domain.BlockRecord) Range {
	return Range{Low: rec.Low, High: rec.High}
}

func cloneRecord(rec *domain.BlockRecord) domain.BlockRecord {
	cp := *rec
	cp.Days = copyDays(rec.Days)
	if rec.DtExpired != nil {
		at := *rec.DtExpired
		cp.DtExpired = &at
	}
	return cp
}

func copyDays(days *int) *int {
	if days == nil {
		return nil
	}
	v := *days
	return &v
}
