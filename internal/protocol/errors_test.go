package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/raknet/internal/testutil/testlog"
)

func TestClassifyAndReason(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err    error
		cat    Category
		reason string
	}{
		{ErrTruncatedInput, CategoryRecoverable, "truncated"},
		{fmt.Errorf("frame: %w", ErrDuplicate), CategoryRecoverable, "duplicate"},
		{fmt.Errorf("queue: %w: channel 40", ErrInvalidChannel), CategoryViolation, "invalid_channel"},
		{ErrSplitLimitExceeded, CategoryViolation, "split_limit"},
		{fmt.Errorf("handshake: %w", ErrServerFull), CategoryHandshake, "server_full"},
		{ErrNoCompatibleMTU, CategoryHandshake, "no_compatible_mtu"},
		{ErrSessionTimeout, CategorySession, "timeout"},
		{errors.New("socket gone"), CategoryUnknown, "other"},
		{nil, CategoryUnknown, "other"},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.cat {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.cat)
		}
		if got := Reason(tc.err); got != tc.reason {
			t.Fatalf("Reason(%v) = %q, want %q", tc.err, got, tc.reason)
		}
	}
}

func TestEveryCategorizedErrorHasReason(t *testing.T) {
	testlog.Start(t)
	seen := make(map[string]bool)
	for _, c := range categories {
		if c.reason == "" || c.reason == "other" {
			t.Fatalf("%v has no reason label", c.err)
		}
		if seen[c.reason] {
			t.Fatalf("duplicate reason label %q", c.reason)
		}
		seen[c.reason] = true
		if Classify(c.err) == CategoryUnknown {
			t.Fatalf("%v classified as unknown", c.err)
		}
	}
}
