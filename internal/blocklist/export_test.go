package blocklist

import (
	"reflect"
	"testing"
	"time"

	"fwblock/internal/domain"
)

func TestExportLines(t *testing.T) {
	s, _ := newTestStore(t)

	mustInsert(t, s, Candidate{Address: "10.0.0.0/24", Metadata: domain.Metadata{Country: "XX", Org: "Example Net", Reason: "0"}})
	mustInsert(t, s, Candidate{Address: "9.9.9.9", PortScope: "web"})
	mustInsert(t, s, Candidate{Address: "11.0.0.1", PortScope: "ssh"})
	s.records[2].MarkExpired(time.Now())

	want := []string{
		"tcp|in|d=80,443|s=9.9.9.9 # - | - | web abuse | added 2021-02-21T10:27:53Z | 5d | expires 2021-02-26T10:27:53Z",
		"10.0.0.0/24 # XX | Example Net | manual | added 2021-02-21T10:27:53Z | 10d | expires 2021-03-03T10:27:53Z",
	}
	if got := s.ExportLines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ExportLines =\n%q\nwant\n%q", got, want)
	}
}

func TestDescribeNeverExpires(t *testing.T) {
	s, _ := newTestStore(t)
	rec := domain.BlockRecord{Address: "1.1.1.1", DtAdded: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)}

	want := "- | - | - | added 2020-01-02T03:04:05Z | 0d | expires never"
	if got := s.Describe(rec); got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}
