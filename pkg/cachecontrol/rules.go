// Package cachecontrol composes Cache-Control, ETag and Last-Modified headers
// for origin responses from a table of route rules, and answers
// must-revalidate requests whose validators still match with 304/412.
package cachecontrol

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule describes the caching headers for a group of routes.
type Rule struct {
	// Name identifies the rule; the rule ETag is derived from it.
	Name string `yaml:"name"`

	// PathPrefix selects requests whose path starts with it (default "/").
	PathPrefix string `yaml:"path_prefix"`

	// Methods restricts the rule to these methods (empty = all methods).
	Methods []string `yaml:"methods"`

	// Headers, when set, is used verbatim as Cache-Control and disables composition.
	Headers string `yaml:"headers"`

	// LastModified is announced as Last-Modified (default: composer creation time).
	LastModified time.Time `yaml:"last_modified"`

	Public          bool `yaml:"public"`
	Private         bool `yaml:"private"`
	NoCache         bool `yaml:"no_cache"`
	NoStore         bool `yaml:"no_store"`
	MaxAge          int  `yaml:"max_age"`
	SMaxAge         int  `yaml:"s_maxage"`
	MustRevalidate  bool `yaml:"must_revalidate"`
	ProxyRevalidate bool `yaml:"proxy_revalidate"`
}

// Matches reports whether the rule applies to req.
func (r Rule) Matches(req *http.Request) bool {
	prefix := r.PathPrefix
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(req.URL.Path, prefix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, method := range r.Methods {
		if strings.EqualFold(method, req.Method) {
			return true
		}
	}
	return false
}

// ETag returns the unquoted entity tag of the rule: the md5 hex digest of its name.
func (r Rule) ETag() string {
	sum := md5.Sum([]byte(r.Name))
	return hex.EncodeToString(sum[:])
}

// Validate checks the rule for configuration errors.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.PathPrefix != "" && !strings.HasPrefix(r.PathPrefix, "/") {
		return fmt.Errorf("rule %q: path_prefix must start with /", r.Name)
	}
	if r.MaxAge < 0 || r.SMaxAge < 0 {
		return fmt.Errorf("rule %q: max_age and s_maxage must not be negative", r.Name)
	}
	if r.Public && r.Private {
		return fmt.Errorf("rule %q: public and private are exclusive", r.Name)
	}
	return nil
}

// rulesFile is the YAML layout of a rules file.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules parses and validates YAML rule definitions.
//
// Example:
//
//	rules:
//	  - name: products
//	    path_prefix: /products
//	    methods: [GET, HEAD]
//	    public: true
//	    max_age: 60
//	    must_revalidate: true
//	    last_modified: 2024-01-01T00:00:00Z
func ParseRules(data []byte) ([]Rule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	seen := make(map[string]bool, len(file.Rules))
	for _, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("duplicate rule %q", rule.Name)
		}
		seen[rule.Name] = true
	}
	return file.Rules, nil
}

// LoadRules reads rule definitions from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}
