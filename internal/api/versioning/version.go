// Package versioning resolves the API version of a request from its URL,
// headers and media type, and owns the fixed set of supported versions that
// both routing and the API documentation are generated from.
package versioning

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupportedVersion is returned when a request names a version that is
// malformed or not in the supported set.
var ErrUnsupportedVersion = errors.New("unsupported api version")

// ErrInvalidVersionSet is returned when the configured versions are inconsistent.
var ErrInvalidVersionSet = errors.New("invalid api version set")

// Version is a major.minor API version.
type Version struct {
	Major int
	Minor int
}

// Parse accepts "1", "1.0", "v1" and "v1.0" (case-insensitive prefix).
func Parse(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s != "" && (s[0] == 'v' || s[0] == 'V') {
		s = s[1:]
	}
	if s == "" {
		return Version{}, fmt.Errorf("empty version %q", raw)
	}

	majorStr, minorStr, hasMinor := strings.Cut(s, ".")
	major, err := parseComponent(majorStr)
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version in %q: %w", raw, err)
	}
	minor := 0
	if hasMinor {
		if minor, err = parseComponent(minorStr); err != nil {
			return Version{}, fmt.Errorf("invalid minor version in %q: %w", raw, err)
		}
	}
	return Version{Major: major, Minor: minor}, nil
}

func parseComponent(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return strconv.Atoi(s)
}

// String formats v as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// GroupName is the documentation group of v: 'v' followed by the version.
func (v Version) GroupName() string {
	return "v" + v.String()
}

// Less orders versions ascending.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Descriptor is one supported API version.
type Descriptor struct {
	Version    Version
	Deprecated bool
}

// GroupName returns the documentation group name for d.
func (d Descriptor) GroupName() string { return d.Version.GroupName() }

func (d Descriptor) String() string { return d.Version.String() }

// Set is the immutable set of supported versions plus the default.
// It is built once at startup and shared by the resolver and the docs.
type Set struct {
	descriptors []Descriptor
	byVersion   map[Version]Descriptor
	def         Descriptor
}

// NewSet builds a Set. The default and every deprecated version must be
// among the supported ones.
func NewSet(supported, deprecated []string, defaultVersion string) (*Set, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("%w: no supported versions", ErrInvalidVersionSet)
	}

	s := &Set{byVersion: make(map[Version]Descriptor, len(supported))}
	for _, raw := range supported {
		v, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVersionSet, err)
		}
		if _, dup := s.byVersion[v]; dup {
			return nil, fmt.Errorf("%w: duplicate version %s", ErrInvalidVersionSet, v)
		}
		s.byVersion[v] = Descriptor{Version: v}
	}

	for _, raw := range deprecated {
		v, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidVersionSet, err)
		}
		d, ok := s.byVersion[v]
		if !ok {
			return nil, fmt.Errorf("%w: deprecated version %s is not supported", ErrInvalidVersionSet, v)
		}
		d.Deprecated = true
		s.byVersion[v] = d
	}

	dv, err := Parse(defaultVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: default: %v", ErrInvalidVersionSet, err)
	}
	def, ok := s.byVersion[dv]
	if !ok {
		return nil, fmt.Errorf("%w: default version %s is not supported", ErrInvalidVersionSet, dv)
	}
	s.def = def

	for _, d := range s.byVersion {
		s.descriptors = append(s.descriptors, d)
	}
	sort.Slice(s.descriptors, func(i, j int) bool {
		return s.descriptors[i].Version.Less(s.descriptors[j].Version)
	})
	return s, nil
}

// Descriptors returns the supported versions in ascending order.
func (s *Set) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Default returns the version used when a request carries no signal.
func (s *Set) Default() Descriptor { return s.def }

// Lookup returns the descriptor for v if it is supported.
func (s *Set) Lookup(v Version) (Descriptor, bool) {
	d, ok := s.byVersion[v]
	return d, ok
}

// GroupNames lists the documentation group of every supported version.
func (s *Set) GroupNames() []string {
	names := make([]string, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		names = append(names, d.GroupName())
	}
	return names
}

// LookupGroup returns the descriptor whose group name is name.
func (s *Set) LookupGroup(name string) (Descriptor, bool) {
	for _, d := range s.descriptors {
		if strings.EqualFold(d.GroupName(), name) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// SupportedHeader is the value of the api-supported-versions response header.
func (s *Set) SupportedHeader() string {
	return s.join(func(d Descriptor) bool { return !d.Deprecated })
}

// DeprecatedHeader is the value of the api-deprecated-versions response header.
func (s *Set) DeprecatedHeader() string {
	return s.join(func(d Descriptor) bool { return d.Deprecated })
}

func (s *Set) join(keep func(Descriptor) bool) string {
	var parts []string
	for _, d := range s.descriptors {
		if keep(d) {
			parts = append(parts, d.String())
		}
	}
	return strings.Join(parts, ", ")
}
