// Package version provides API version parsing, comparison and path helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the API version implemented by this library.
const Current = "1.0"

// APIVersion represents a parsed "major.minor" API version.
type APIVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (APIVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return APIVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return APIVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustCurrent returns Current parsed.
func MustCurrent() APIVersion {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v APIVersion) Compatible(other APIVersion) bool {
	return v.Major == other.Major
}

// PathPrefix returns the HTTP path prefix for a major version: "/api/vN".
func PathPrefix(major uint16) string {
	return fmt.Sprintf("/api/v%d", major)
}

// TXTValue returns the mDNS "ver" value advertised for a major version.
func TXTValue(major uint16) string {
	return strconv.FormatUint(uint64(major), 10)
}

// MajorFromTXT extracts the major version from an advertised "ver" value.
func MajorFromTXT(value string) (uint16, error) {
	if value == "" {
		return 0, fmt.Errorf("empty version in TXT record")
	}
	major, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid version in TXT record %q: %w", value, err)
	}
	return uint16(major), nil
}
