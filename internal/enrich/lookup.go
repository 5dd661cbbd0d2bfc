package enrich

import (
	"context"
	"errors"
	"fmt"
)

// Field names filled by the built-in lookups.
const (
	FieldCountryCode = "countryCode"
	FieldCountry     = "country"
	FieldASN         = "asn"
	FieldOrg         = "org"
	FieldPTR         = "ptr"
)

// Lookuper returns key/value metadata about an IPv4 address. Implementations
// may return partial fields together with an error.
type Lookuper interface {
	Lookup(ctx context.Context, address string) (map[string]string, error)
}

type LookupFunc func(ctx context.Context, address string) (map[string]string, error)

func (f LookupFunc) Lookup(ctx context.Context, address string) (map[string]string, error) {
	return f(ctx, address)
}

// Chain runs every lookup in order. Values from earlier lookups win.
type Chain []Lookuper

func (c Chain) Lookup(ctx context.Context, address string) (map[string]string, error) {
	fields := make(map[string]string)
	var errs []error

	for i, l := range c {
		if l == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		got, err := l.Lookup(ctx, address)
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup %d: %w", i, err))
		}
		for k, v := range got {
			if v == "" {
				continue
			}
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}

	return fields, errors.Join(errs...)
}
