package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeRegistryTXT creates the TXT records of a registry.
func EncodeRegistryTXT(info *RegistryInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyRegistry: info.Registry.Hex(),
		TXTKeyVersion:  version.TXTValue(info.Version),
	}
	if !info.Manufacturer.IsZero() {
		txt[TXTKeyManufacturer] = info.Manufacturer.Hex()
	}
	return txt
}

// DecodeRegistryTXT parses the TXT records of a registry.
func DecodeRegistryTXT(txt TXTRecordMap) (*RegistryInfo, error) {
	info := &RegistryInfo{}

	reg, ok := txt[TXTKeyRegistry]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyRegistry)
	}
	addr, err := identity.ParseAddress(reg)
	if err != nil || addr.IsZero() {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, TXTKeyRegistry, reg)
	}
	info.Registry = addr

	ver, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	info.Version, err = version.MajorFromTXT(ver)
	if err != nil {
		return nil, err
	}

	if mfr, ok := txt[TXTKeyManufacturer]; ok {
		addr, err := identity.ParseAddress(mfr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidAddress, TXTKeyManufacturer, mfr)
		}
		info.Manufacturer = addr
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings, sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		key, value, found := strings.Cut(s, "=")
		if key == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			value = ""
		}
		txt[key] = value
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// InstanceName builds the default instance name of a registry:
// "<prefix>-<first 8 hex digits of the registry address>".
func InstanceName(prefix string, registry identity.Address) string {
	name := fmt.Sprintf("%s-%s", prefix, registry.Hex()[2:10])
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
