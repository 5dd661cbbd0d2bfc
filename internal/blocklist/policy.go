package blocklist

import (
	"fmt"
	"strconv"
	"strings"

	"fwblock/internal/domain"
)

// PortGroup is a named set of ports a block can be restricted to.
type PortGroup struct {
	Ports  []int
	Days   *int
	Reason *int
}

// Policy is the read-only configuration the store and the expiry engine
// consult: port groups, the reason catalog and TTL defaults.
type Policy struct {
	PortGroups  map[string]PortGroup
	Reasons     []string
	CountryDays map[string]int
	DefaultDays int
}

// HasPortGroup reports whether id names a configured port group.
func (p Policy) HasPortGroup(id string) bool {
	_, ok := p.PortGroups[id]
	return ok
}

// ResolveTTLDays returns the number of days a record stays active. The
// record's own override wins, then the country default, then the port group
// default, then the global default. Zero means the record never expires.
func (p Policy) ResolveTTLDays(rec *domain.BlockRecord) int {
	if days := rec.DaysValue(); days != 0 {
		return days
	}
	if rec.Country != "" {
		if days, ok := p.CountryDays[rec.Country]; ok {
			return days
		}
	}
	if rec.PortScope != "" {
		if group, ok := p.PortGroups[rec.PortScope]; ok && group.Days != nil {
			return *group.Days
		}
	}
	if p.DefaultDays > 0 {
		return p.DefaultDays
	}
	return 0
}

// ResolveReason turns the candidate's reason into the text stored on the
// record. A decimal value is an index into the reason catalog. With no reason
// given, the port group's default reason applies.
func (p Policy) ResolveReason(raw, portScope string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if !isDigits(raw) {
			return raw, nil
		}
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownReason, raw)
		}
		return p.reasonAt(idx)
	}

	if portScope == "" {
		return "", nil
	}
	group, ok := p.PortGroups[portScope]
	if !ok || group.Reason == nil {
		return "", nil
	}
	return p.reasonAt(*group.Reason)
}

func (p Policy) reasonAt(idx int) (string, error) {
	if idx < 0 || idx >= len(p.Reasons) {
		return "", fmt.Errorf("%w: index %d out of range (have %d)", ErrUnknownReason, idx, len(p.Reasons))
	}
	return p.Reasons[idx], nil
}
