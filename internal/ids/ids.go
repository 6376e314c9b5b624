// Package ids centralizes identifier formats: sequential commit/report ids,
// ULID-based run and request ids, and the canonical timestamp format.
package ids

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDWidth is the zero-padded width of the numeric component of commit and
// report ids. Numbers wider than this keep their full width.
const IDWidth = 4

// FormatID renders a sequential id such as c0001 or r0042.
func FormatID(prefix string, number int) string {
	return fmt.Sprintf("%s%0*d", prefix, IDWidth, number)
}

// ParseIDNumber extracts the numeric component of a sequential id.
// Returns -1 when the id does not match the prefix or is not numeric.
func ParseIDNumber(id, prefix string) int {
	if !strings.HasPrefix(id, prefix) {
		return -1
	}
	suffix := strings.TrimPrefix(id, prefix)
	if suffix == "" {
		return -1
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return -1
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return -1
	}
	return n
}

// NewRunID returns an eval run id. ULIDs encode a millisecond timestamp
// followed by random bits, so ids sort roughly by creation time.
func NewRunID() string {
	return "eval_" + strings.ToLower(ulid.Make().String())
}

// NewRequestID returns a per-request correlation id.
func NewRequestID() string {
	return "req_" + strings.ToLower(ulid.Make().String())
}

// VariantID renders the id for the zero-based variant index: v01, v02, ...
func VariantID(index int) string {
	return fmt.Sprintf("v%02d", index+1)
}

// NowISO returns the current UTC time at second precision in RFC3339 form
// with a Z suffix. All persisted timestamps use this format.
func NowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z07:00")
}
