package cache

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"regexp"
	"strings"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z0-9_%\-&]{1,250}$`)

// IsValidIdentifier reports whether id may be used as an entry identifier.
func IsValidIdentifier(id string) bool {
	return validIdentifier.MatchString(id)
}

// IsValidTag reports whether tag may be attached to an entry.
func IsValidTag(tag string) bool {
	return validIdentifier.MatchString(tag)
}

// CanonicalURI returns the absolute URI of a request.
// Format: scheme://host/path?query
func CanonicalURI(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host) + r.URL.RequestURI()
}

// EntryIdentifier derives the cache key for a request.
// For each header named in vary, in order, "Name=value;" is appended to a
// prefix (absent headers yield an empty value); the identifier is the md5 hex
// digest of that prefix followed by the canonical URI.
//
// Example:
//
//	vary = [Accept-Language], Accept-Language: en
//	md5("Accept-Language=en;http://example.com/page")
func EntryIdentifier(r *http.Request, vary []string) string {
	var b strings.Builder
	for _, name := range vary {
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(r.Header.Values(name), ", "))
		b.WriteByte(';')
	}
	b.WriteString(CanonicalURI(r))
	return hashHex(b.String())
}

// VaryIdentifier returns the identifier under which the Vary header names of
// the response stored for r's URI are kept.
func VaryIdentifier(r *http.Request) string {
	return "vary_" + hashHex(CanonicalURI(r))
}

// RequestVary returns the header names listed in the request's own Vary header.
func RequestVary(r *http.Request) []string {
	return ListHeader(r.Header, "Vary")
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
