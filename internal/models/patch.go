package models

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// Patch is a game patch label such as "7.0", "7.05" or "6.58". The digits
// after the dot are a minor number followed by an optional single-digit
// point release, so "7.05" sorts after "7.0" and before "7.1".
type Patch string

var patchPattern = regexp.MustCompile(`^(\d{1,2})\.(\d)(\d)?$`)

// ParsePatch validates s and returns it as a Patch.
func ParsePatch(s string) (Patch, error) {
	p := Patch(s)
	if _, err := p.Version(); err != nil {
		return "", err
	}
	return p, nil
}

// Version maps the patch onto a semantic version: "7.05" is 7.0.5, "7.1" is
// 7.1.0 and "7.11" is 7.1.1.
func (p Patch) Version() (*semver.Version, error) {
	m := patchPattern.FindStringSubmatch(string(p))
	if m == nil {
		return nil, fmt.Errorf("invalid patch %q: expected X.Y or X.YZ", string(p))
	}
	point := m[3]
	if point == "" {
		point = "0"
	}
	v, err := semver.NewVersion(fmt.Sprintf("%s.%s.%s", m[1], m[2], point))
	if err != nil {
		return nil, fmt.Errorf("invalid patch %q: %w", string(p), err)
	}
	return v, nil
}

func (p Patch) IsZero() bool {
	return p == ""
}

func (p Patch) Validate() error {
	_, err := p.Version()
	return err
}

// Compare returns -1, 0 or 1. Unparseable patches sort before valid ones and
// compare equal to each other.
func (p Patch) Compare(other Patch) int {
	a, errA := p.Version()
	b, errB := other.Version()
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return a.Compare(b)
}

// AtLeast reports whether p was released in or after since. An empty since
// matches everything; an empty or invalid p matches only an empty since.
func (p Patch) AtLeast(since Patch) bool {
	if since.IsZero() {
		return true
	}
	if p.Validate() != nil {
		return false
	}
	return p.Compare(since) >= 0
}

func (p Patch) String() string {
	return string(p)
}
