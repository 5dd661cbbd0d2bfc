package domain

import "time"

// Status marks the lifecycle state of a BlockRecord. The zero value is active.
type Status string

const (
	StatusActive  Status = ""
	StatusExpired Status = "Expired"
)

// BlockRecord is one firewall blocklist entry.
type BlockRecord struct {
	// Address is a dotted-quad IPv4 address with an optional /prefix suffix.
	Address string `json:"address"`

	// PortScope names a configured port group. Empty means every port.
	PortScope string `json:"portScope,omitempty"`

	DtAdded time.Time `json:"dtAdded"`

	// Days overrides the policy TTL when set and non-zero.
	Days *int `json:"days,omitempty"`

	Country string `json:"country,omitempty"`
	Org     string `json:"org,omitempty"`
	Reason  string `json:"reason,omitempty"`

	Status    Status     `json:"status,omitempty"`
	DtExpired *time.Time `json:"dtExpired,omitempty"`

	// Computed bounds used in-memory; not persisted.
	Low  uint32 `json:"-"`
	High uint32 `json:"-"`
}

func (r *BlockRecord) IsActive() bool {
	return r.Status != StatusExpired
}

func (r *BlockRecord) IsExpired() bool {
	return r.Status == StatusExpired
}

// MarkExpired moves the record to the expired state at the given time.
func (r *BlockRecord) MarkExpired(at time.Time) {
	at = at.UTC()
	r.Status = StatusExpired
	r.DtExpired = &at
}

// ClearExpiry returns the record to the active state.
func (r *BlockRecord) ClearExpiry() {
	r.Status = StatusActive
	r.DtExpired = nil
}

// DaysValue returns the explicit TTL override, or zero when none is set.
func (r *BlockRecord) DaysValue() int {
	if r.Days == nil {
		return 0
	}
	return *r.Days
}
