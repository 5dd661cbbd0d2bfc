package domain

// Metadata carries the optional descriptive fields supplied with a candidate.
// Empty strings and a nil Days mean the field is absent.
type Metadata struct {
	Country string `json:"country,omitempty"`
	Org     string `json:"org,omitempty"`

	// Reason is either free text or a decimal index into the reason catalog.
	Reason string `json:"reason,omitempty"`

	Days *int `json:"days,omitempty"`
}

// Merge fills absent fields of m from other and returns the result.
func (m Metadata) Merge(other Metadata) Metadata {
	if m.Country == "" {
		m.Country = other.Country
	}
	if m.Org == "" {
		m.Org = other.Org
	}
	if m.Reason == "" {
		m.Reason = other.Reason
	}
	if m.Days == nil {
		m.Days = other.Days
	}
	return m
}
