package enrich

import (
	"context"

	"github.com/charmbracelet/log"

	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
)

// Enricher maps lookup fields onto block record metadata.
type Enricher struct {
	lookup       Lookuper
	countryField string
	orgField     string
}

func NewEnricher(lookup Lookuper, countryField, orgField string) *Enricher {
	if countryField == "" {
		countryField = FieldCountryCode
	}
	if orgField == "" {
		orgField = FieldOrg
	}
	return &Enricher{lookup: lookup, countryField: countryField, orgField: orgField}
}

// Metadata looks up the base address of address. Lookup failures are logged
// and whatever fields were found are still used.
func (e *Enricher) Metadata(ctx context.Context, address string) domain.Metadata {
	if e == nil || e.lookup == nil {
		return domain.Metadata{}
	}

	base := blocklist.BaseAddress(address)
	fields, err := e.lookup.Lookup(ctx, base)
	if err != nil {
		log.Warn("Address lookup failed", "address", base, "error", err)
	}

	meta := domain.Metadata{
		Country: fields[e.countryField],
		Org:     fields[e.orgField],
	}
	if meta.Org == "" {
		meta.Org = fields[FieldPTR]
	}
	return meta
}
