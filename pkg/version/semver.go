package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var semVerPattern = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// SemVer is a parsed semantic version.
type SemVer struct {
	Major int64
	Minor int64
	Patch int64

	PreRelease string
	Build      string
}

// Parse parses a semantic version, with or without a leading v.
func Parse(raw string) (SemVer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SemVer{}, errors.New("version cannot be empty")
	}
	m := semVerPattern.FindStringSubmatch(raw)
	if len(m) != 6 {
		return SemVer{}, fmt.Errorf("invalid semantic version: %q", raw)
	}

	var nums [3]int64
	for i := range nums {
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return SemVer{}, fmt.Errorf("invalid version component %q: %w", m[i+1], err)
		}
		nums[i] = n
	}
	for _, id := range strings.Split(m[4], ".") {
		if len(id) > 1 && id[0] == '0' && isNumeric(id) {
			return SemVer{}, fmt.Errorf("invalid prerelease numeric identifier %q: leading zero", id)
		}
	}
	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2], PreRelease: m[4], Build: m[5]}, nil
}

// IsPreRelease reports whether v carries a prerelease tag.
func (v SemVer) IsPreRelease() bool { return v.PreRelease != "" }

// String returns the canonical form without the leading v.
func (v SemVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0 or 1. Build metadata is ignored and a prerelease
// sorts before its release.
func (v SemVer) Compare(other SemVer) int {
	for _, pair := range [][2]int64{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if c := compareInt(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return comparePreRelease(v.PreRelease, other.PreRelease)
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func comparePreRelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aNum := numeric(as[i])
		bn, bNum := numeric(bs[i])
		switch {
		case aNum && bNum:
			return compareInt(an, bn)
		case aNum:
			return -1
		case bNum:
			return 1
		case as[i] < bs[i]:
			return -1
		default:
			return 1
		}
	}
	return compareInt(int64(len(as)), int64(len(bs)))
}

func numeric(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func isNumeric(s string) bool {
	_, ok := numeric(s)
	return ok
}
