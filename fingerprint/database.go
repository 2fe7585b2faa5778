package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Provider selects the profile to emulate for a request.  A nil result
// means no profile is available.
type Provider interface {
	Select(ctx context.Context) *Profile
}

// SelectFallback decides what a Database returns when the request carries
// no usable user-agent information.
type SelectFallback int

// Select fallbacks.
const (
	// FallbackNone selects nothing, so the request passes through.
	FallbackNone SelectFallback = iota
	// FallbackFirst selects the first profile of the database.
	FallbackFirst
	// FallbackRotate cycles through all profiles round-robin.
	FallbackRotate
)

func (f SelectFallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackFirst:
		return "first"
	case FallbackRotate:
		return "rotate"
	}
	return fmt.Sprintf("fallback(%d)", int(f))
}

// ParseSelectFallback parses "none", "first" or "rotate".
func ParseSelectFallback(s string) (SelectFallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return FallbackNone, nil
	case "first":
		return FallbackFirst, nil
	case "rotate":
		return FallbackRotate, nil
	}
	return FallbackNone, fmt.Errorf("fingerprint: unknown select fallback %q", s)
}

// Database is an in-memory Provider.
//
// Thread-safety: the profile slice is never modified after construction and
// profiles are immutable; a mutex guards only the rotation index, so Select
// may be called from any number of goroutines.
type Database struct {
	profiles []*Profile
	fallback SelectFallback

	mu   sync.Mutex
	next int
}

// NewDatabase validates profiles and returns a Database serving them.
func NewDatabase(fallback SelectFallback, profiles ...*Profile) (*Database, error) {
	for _, p := range profiles {
		if p == nil {
			return nil, fmt.Errorf("fingerprint: nil profile")
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return &Database{profiles: profiles, fallback: fallback}, nil
}

// BuiltinDatabase returns a Database of the built-in profiles.
func BuiltinDatabase(fallback SelectFallback) *Database {
	db, err := NewDatabase(fallback, Builtin()...)
	if err != nil {
		panic(err)
	}
	return db
}

// profileFile is the on-disk layout of a profile database.
type profileFile struct {
	Profiles []*Profile `json:"profiles" yaml:"profiles"`
}

// LoadDatabase reads profiles from a JSON file, or from YAML when the file
// name ends in .yaml or .yml.
func LoadDatabase(filename string, fallback SelectFallback) (*Database, error) {
	data, err := os.ReadFile(filename) // #nosec G304 – operator-supplied profile path
	if err != nil {
		return nil, fmt.Errorf("fingerprint: read %q: %w", filename, err)
	}

	var pf profileFile
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&pf); err != nil {
			return nil, fmt.Errorf("fingerprint: decode %q: %w", filename, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&pf); err != nil {
			return nil, fmt.Errorf("fingerprint: decode %q: %w", filename, err)
		}
	}
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("fingerprint: %q contains no profiles", filename)
	}

	db, err := NewDatabase(fallback, pf.Profiles...)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: load %q: %w", filename, err)
	}
	return db, nil
}

// Len returns the number of profiles.
func (db *Database) Len() int { return len(db.profiles) }

// Profiles returns the profiles in database order.
func (db *Database) Profiles() []*Profile {
	return append([]*Profile(nil), db.profiles...)
}

// Select implements Provider.
//
// With a UserAgent in ctx the database narrows by browser family (an
// HTTPAgent override takes precedence over the parsed kind), then by
// platform, then picks the newest version not above the requested one, or
// the newest overall when all are newer.  Without a usable hint the fallback
// applies.
func (db *Database) Select(ctx context.Context) *Profile {
	if len(db.profiles) == 0 {
		return nil
	}
	if ua, ok := UserAgentFromContext(ctx); ok {
		if p := db.match(ua); p != nil {
			return p
		}
	}
	switch db.fallback {
	case FallbackFirst:
		return db.profiles[0]
	case FallbackRotate:
		db.mu.Lock()
		p := db.profiles[db.next]
		db.next = (db.next + 1) % len(db.profiles)
		db.mu.Unlock()
		return p
	}
	return nil
}

func (db *Database) match(ua UserAgent) *Profile {
	kind := ua.Kind
	if k, ok := ua.HTTPAgent.Kind(); ok {
		kind = k
	}
	if kind == "" && ua.Platform == "" {
		return nil
	}

	candidates := db.profiles
	if kind != "" {
		candidates = filter(candidates, func(p *Profile) bool { return p.UAKind == kind })
	}
	if ua.Platform != "" {
		if narrowed := filter(candidates, func(p *Profile) bool { return p.Platform == ua.Platform }); len(narrowed) > 0 {
			candidates = narrowed
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var best, newest *Profile
	for _, p := range candidates {
		if newest == nil || p.UAVersion > newest.UAVersion {
			newest = p
		}
		if ua.Version > 0 && p.UAVersion <= ua.Version && (best == nil || p.UAVersion > best.UAVersion) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	return newest
}

func filter(in []*Profile, keep func(*Profile) bool) []*Profile {
	var out []*Profile
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
