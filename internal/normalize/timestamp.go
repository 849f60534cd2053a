package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// zoned matches a trailing Z marker or numeric UTC offset after the clock part.
var zoned = regexp.MustCompile(`(?i)(z|[+-]\d{2}(:?\d{2})?)$`)

// NormalizeTimestamp rewrites a zone-less "YYYY-MM-DD hh:mm:ss" timestamp into
// ISO form with an explicit UTC marker. Anything that already carries a Z
// marker or an offset is returned unchanged.
func NormalizeTimestamp(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || hasZone(s) || !strings.ContainsAny(s, "T ") {
		return s
	}
	return strings.Replace(s, " ", "T", 1) + "Z"
}

func hasZone(s string) bool {
	if strings.ContainsAny(s, "Zz+") {
		return true
	}
	// a '-' offset can only appear after the time separator
	if i := strings.IndexAny(s, "T "); i >= 0 {
		return zoned.MatchString(s[i+1:])
	}
	return false
}

// ParseTimestamp normalizes s and parses it into an absolute instant in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	n := NormalizeTimestamp(s)
	if n == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, n); err == nil {
		return t.UTC(), nil
	}
	t, err := dateparse.ParseIn(n, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t.UTC(), nil
}
