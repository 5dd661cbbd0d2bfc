package support

import (
	"context"
	"testing"
	"time"
)

func TestRenewalInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: 45 * time.Second, want: 15 * time.Second},
		{ttl: 2 * time.Second, want: time.Second},
		{ttl: 0, want: time.Second},
	}

	for _, tt := range tests {
		if got := renewalInterval(tt.ttl); got != tt.want {
			t.Fatalf("renewalInterval(%s) = %s, want %s", tt.ttl, got, tt.want)
		}
	}
}

func TestGenerateLockIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := generateLockID()
		if _, dup := seen[id]; dup {
			t.Fatalf("generateLockID returned duplicate %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestAcquireWriterLockRequiresClient(t *testing.T) {
	if _, err := AcquireWriterLock(context.Background(), nil, "", 0); err == nil {
		t.Fatal("AcquireWriterLock with nil client returned no error")
	}
}
