package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// Capability identifiers reported by SupportsInterface.
const (
	InterfaceERC165  uint32 = 0x01ffc9a7
	InterfaceERC721  uint32 = 0x80ac58cd
	InterfaceERC4519 uint32 = 0x8a68abe3
)

var supportedInterfaces = []uint32{InterfaceERC165, InterfaceERC721, InterfaceERC4519}

// SupportsInterface reports whether the registry implements the capability id.
func (r *Registry) SupportsInterface(id uint32) bool {
	for _, s := range supportedInterfaces {
		if s == id {
			return true
		}
	}
	return false
}

// SupportedInterfaces returns the fixed list of capability ids.
func (r *Registry) SupportedInterfaces() []uint32 {
	out := make([]uint32, len(supportedInterfaces))
	copy(out, supportedInterfaces)
	return out
}

// ParseInterfaceID parses a 4-byte id written as 0x-prefixed hex.
func ParseInterfaceID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("interface id %q: missing 0x prefix", s)
	}
	if len(s) != 10 {
		return 0, fmt.Errorf("interface id %q: want 8 hex digits", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("interface id %q: %w", s, err)
	}
	return uint32(v), nil
}

// FormatInterfaceID formats an id as 0x-prefixed hex.
func FormatInterfaceID(id uint32) string {
	return fmt.Sprintf("0x%08x", id)
}
