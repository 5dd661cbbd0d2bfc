package blocklist

import (
	"cmp"
	"slices"
	"strings"

	"fwblock/internal/domain"
)

// Compare orders two addresses by their base address as a 32-bit integer.
// The CIDR suffix does not take part. Unparsable addresses sort after valid
// ones, by plain string order among themselves.
func Compare(a, b string) int {
	av, aErr := parseIPv4(BaseAddress(strings.TrimSpace(a)))
	bv, bErr := parseIPv4(BaseAddress(strings.TrimSpace(b)))

	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(av, bv)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortRecords sorts records in place by base address. Equal addresses keep
// their relative order.
func SortRecords(records []domain.BlockRecord) {
	slices.SortStableFunc(records, func(a, b domain.BlockRecord) int {
		return Compare(a.Address, b.Address)
	})
}
