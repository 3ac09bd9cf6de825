package cache

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxDeltaSeconds caps delta-seconds values; larger values and overflows
// are read as this value, never as a negative number.
const maxDeltaSeconds = 2147483648

// maxDelta is maxDeltaSeconds as a duration.
const maxDelta = maxDeltaSeconds * time.Second

// CacheControl holds the parsed directives of one or more Cache-Control headers.
// Directive names are lowercased; quoted arguments are unquoted.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl parses all Cache-Control header values.
// When a directive appears more than once the last occurrence wins.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	for _, header := range headers {
		for _, directive := range strings.Split(header, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			parts := strings.SplitN(directive, "=", 2)
			name := strings.ToLower(strings.TrimSpace(parts[0]))
			var arg string
			if len(parts) > 1 {
				arg = strings.Trim(strings.TrimSpace(parts[1]), "\"")
			}
			m[name] = arg
		}
	}
	return CacheControl{directives: m}
}

// Get returns the argument of a directive and whether it is present.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[strings.ToLower(directive)]
	return val, ok
}

// Has reports whether the directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// Seconds returns the delta-seconds argument of a directive, capped at
// 2147483648. A present directive with a missing or unparsable argument
// yields (0, true).
func (c CacheControl) Seconds(directive string) (int64, bool) {
	val, ok := c.Get(directive)
	if !ok {
		return 0, false
	}
	n, ok := parseDeltaSeconds(val)
	if !ok {
		return 0, true
	}
	return n, true
}

// parseDeltaSeconds parses a non-negative integer number of seconds.
func parseDeltaSeconds(value string) (int64, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return maxDeltaSeconds, true
	}
	if err != nil {
		return 0, false
	}
	if n > maxDeltaSeconds {
		return maxDeltaSeconds, true
	}
	return int64(n), true
}

// ListHeader returns the comma-separated elements of all values of a header,
// with surrounding whitespace trimmed and empty elements dropped.
func ListHeader(header http.Header, field string) []string {
	var list []string
	for _, value := range header.Values(field) {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}
