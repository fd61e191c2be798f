// Package version implements the three-part version numbers assigned to
// migrations in the ledger.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Initial is the version a fresh ledger starts from.
const Initial = "1.0.0"

const maxComponents = 3

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse reads a dot-separated version. Missing trailing components are
// treated as zero, so "1" and "1.0" both parse to 1.0.0.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrInvalidVersion)
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > maxComponents {
		return Version{}, fmt.Errorf("%w: %q has more than %d components", ErrInvalidVersion, s, maxComponents)
	}

	var nums [maxComponents]int

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q component %d is not a non-negative integer", ErrInvalidVersion, s, i+1)
		}

		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String formats the version as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Next returns the version with the patch component incremented by one.
func (v Version) Next() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or higher than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

// Increment parses s and returns it with the patch component bumped.
func Increment(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}

	return v.Next().String(), nil
}

// Compare parses both strings and compares them component by component.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}

	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}

	return va.Compare(vb), nil
}

// Max returns whichever of a and b compares higher. Both must be valid.
func Max(a, b string) (string, error) {
	c, err := Compare(a, b)
	if err != nil {
		return "", err
	}

	if c < 0 {
		return b, nil
	}

	return a, nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
