package blocklist

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fwblock/internal/domain"
)

// ExportLines renders one line per active record, in list order, for the
// firewall reload path. Scoped records use the CSF advanced filter prefix.
func (s *Store) ExportLines() []string {
	lines := make([]string, 0, len(s.records))
	for i := range s.records {
		rec := &s.records[i]
		if !rec.IsActive() {
			continue
		}
		lines = append(lines, s.exportLine(rec))
	}
	return lines
}

func (s *Store) exportLine(rec *domain.BlockRecord) string {
	var b strings.Builder
	if rec.PortScope != "" {
		b.WriteString("tcp|in|d=")
		b.WriteString(joinPorts(s.policy.PortGroups[rec.PortScope].Ports))
		b.WriteString("|s=")
	}
	b.WriteString(rec.Address)
	b.WriteString(" # ")
	b.WriteString(describe(s.policy, rec))
	return b.String()
}

// Describe returns the human readable metadata part of a record.
func (s *Store) Describe(rec domain.BlockRecord) string {
	return describe(s.policy, &rec)
}

func describe(policy Policy, rec *domain.BlockRecord) string {
	days := policy.ResolveTTLDays(rec)
	expires := "never"
	if at, ok := expiresAt(policy, rec); ok {
		expires = at.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf("%s | %s | %s | added %s | %dd | expires %s",
		orDash(rec.Country),
		orDash(rec.Org),
		orDash(rec.Reason),
		rec.DtAdded.UTC().Format(time.RFC3339),
		days,
		expires,
	)
}

func joinPorts(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
