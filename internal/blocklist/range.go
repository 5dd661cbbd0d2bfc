package blocklist

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Range is an inclusive span of IPv4 addresses.
type Range struct {
	Low  uint32
	High uint32
}

// ParseRange converts "a.b.c.d" or "a.b.c.d/n" into the addresses it covers.
// A bare address is treated as /32.
func ParseRange(address string) (Range, error) {
	base, bits, err := splitAddress(address)
	if err != nil {
		return Range{}, err
	}

	ip, err := parseIPv4(base)
	if err != nil {
		return Range{}, err
	}

	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << uint32(32-bits)
	}

	low := ip & mask
	return Range{Low: low, High: low | ^mask}, nil
}

// Contains reports whether inner lies entirely inside r.
func (r Range) Contains(inner Range) bool {
	return r.Low <= inner.Low && inner.High <= r.High
}

// Size returns the number of addresses covered.
func (r Range) Size() uint64 {
	return uint64(r.High) - uint64(r.Low) + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", uint32ToIP(r.Low), uint32ToIP(r.High))
}

// Contains reports whether outer fully contains inner.
func Contains(outer, inner Range) bool {
	return outer.Contains(inner)
}

// BaseAddress strips an optional /prefix suffix.
func BaseAddress(address string) string {
	if idx := strings.IndexByte(address, '/'); idx >= 0 {
		return address[:idx]
	}
	return address
}

func splitAddress(address string) (string, int, error) {
	address = strings.TrimSpace(address)
	base, suffix, hasSuffix := strings.Cut(address, "/")
	if !hasSuffix {
		return base, 32, nil
	}

	if suffix == "" || len(suffix) > 2 || !isDigits(suffix) {
		return "", 0, fmt.Errorf("%w: bad prefix length in %q", ErrInvalidAddress, address)
	}
	bits, err := strconv.Atoi(suffix)
	if err != nil || bits < 0 || bits > 32 {
		return "", 0, fmt.Errorf("%w: prefix length out of range in %q", ErrInvalidAddress, address)
	}
	return base, bits, nil
}

func parseIPv4(raw string) (uint32, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: %q is not a dotted-quad IPv4 address", ErrInvalidAddress, raw)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func uint32ToIP(v uint32) string {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
