package ids

import (
	"strings"
	"testing"
	"time"
)

func TestFormatID(t *testing.T) {
	cases := []struct {
		prefix string
		number int
		want   string
	}{
		{"c", 1, "c0001"},
		{"c", 42, "c0042"},
		{"r", 9999, "r9999"},
		{"r", 10000, "r10000"},
	}
	for _, tc := range cases {
		if got := FormatID(tc.prefix, tc.number); got != tc.want {
			t.Fatalf("FormatID(%q, %d) = %q, want %q", tc.prefix, tc.number, got, tc.want)
		}
	}
}

func TestParseIDNumber(t *testing.T) {
	if got := ParseIDNumber("c0042", "c"); got != 42 {
		t.Fatalf("ParseIDNumber(c0042) = %d, want 42", got)
	}
	if got := ParseIDNumber("c10000", "c"); got != 10000 {
		t.Fatalf("ParseIDNumber(c10000) = %d, want 10000", got)
	}
	for _, id := range []string{"r0042", "c", "cabc", "c00x1", ""} {
		if got := ParseIDNumber(id, "c"); got != -1 {
			t.Fatalf("ParseIDNumber(%q) = %d, want -1", id, got)
		}
	}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !strings.HasPrefix(id, "eval_") {
		t.Fatalf("run id %q missing eval_ prefix", id)
	}
	if id != strings.ToLower(id) {
		t.Fatalf("run id %q is not lowercase", id)
	}
	if id == NewRunID() {
		t.Fatalf("consecutive run ids collided")
	}
}

func TestVariantID(t *testing.T) {
	if got := VariantID(0); got != "v01" {
		t.Fatalf("VariantID(0) = %q, want v01", got)
	}
	if got := VariantID(2); got != "v03" {
		t.Fatalf("VariantID(2) = %q, want v03", got)
	}
}

func TestNowISO(t *testing.T) {
	now := NowISO()
	if !strings.HasSuffix(now, "Z") {
		t.Fatalf("NowISO() = %q, want Z suffix", now)
	}
	parsed, err := time.Parse(time.RFC3339, now)
	if err != nil {
		t.Fatalf("NowISO() = %q does not parse as RFC3339: %v", now, err)
	}
	if parsed.Nanosecond() != 0 {
		t.Fatalf("NowISO() carries sub-second precision: %q", now)
	}
}
