package discovery

import (
	"context"
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

var (
	testRegistry     = identity.MustParseAddress("0x5000000000000000000000000000000000000005")
	testManufacturer = identity.MustParseAddress("0x00000000000000000000000000000000000000fa")
)

func TestRegistryTXTRoundTrip(t *testing.T) {
	info := &RegistryInfo{Registry: testRegistry, Manufacturer: testManufacturer, Version: 1}

	strs := TXTRecordsToStrings(EncodeRegistryTXT(info))
	assert.Equal(t, []string{
		"mfr=0x00000000000000000000000000000000000000fa",
		"reg=0x5000000000000000000000000000000000000005",
		"ver=1",
	}, strs)

	got, err := DecodeRegistryTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestEncodeRegistryTXTOmitsZeroManufacturer(t *testing.T) {
	txt := EncodeRegistryTXT(&RegistryInfo{Registry: testRegistry, Version: 1})
	_, ok := txt[TXTKeyManufacturer]
	assert.False(t, ok)
	assert.Len(t, txt, 2)
}

func TestDecodeRegistryTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing reg", TXTRecordMap{"ver": "1"}, ErrMissingRequired},
		{"zero reg", TXTRecordMap{"reg": identity.ZeroAddress.Hex(), "ver": "1"}, ErrInvalidAddress},
		{"bad reg", TXTRecordMap{"reg": "0x12", "ver": "1"}, ErrInvalidAddress},
		{"missing ver", TXTRecordMap{"reg": testRegistry.Hex()}, ErrMissingRequired},
		{"bad mfr", TXTRecordMap{"reg": testRegistry.Hex(), "ver": "1", "mfr": "zz"}, ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRegistryTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := DecodeRegistryTXT(TXTRecordMap{"reg": testRegistry.Hex(), "ver": "one"})
	assert.Error(t, err)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"reg=0xab", "flag", "empty=", "=orphan", "kv=a=b"})
	assert.Equal(t, TXTRecordMap{"reg": "0xab", "flag": "", "empty": "", "kv": "a=b"}, txt)
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "smartkey-50000000", InstanceName("smartkey", testRegistry))
	assert.NoError(t, ValidateInstanceName(InstanceName("smartkey", testRegistry)))

	long := InstanceName(string(make([]byte, 80)), testRegistry)
	assert.Len(t, long, MaxInstanceNameLen)

	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
}

func TestAdvertiserRejectsBadInfo(t *testing.T) {
	a := NewAdvertiser(AdvertiserConfig{})
	ctx := context.Background()

	assert.ErrorIs(t, a.Advertise(ctx, &RegistryInfo{Registry: testRegistry}), ErrInstanceNameTooLong)
	assert.ErrorIs(t, a.Advertise(ctx, &RegistryInfo{Instance: "smartkey"}), ErrInvalidAddress)
	assert.ErrorIs(t, a.Update(&RegistryInfo{}), ErrNotAdvertising)
	assert.False(t, a.Advertising())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, a.Advertise(cancelled, &RegistryInfo{Instance: "smartkey", Registry: testRegistry}), context.Canceled)

	a.Stop()
}

func TestEntryToService(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "registry.local.",
		Port:     8545,
		Text:     []string{"reg=" + testRegistry.Hex(), "ver=1"},
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")},
	}
	entry.Instance = "smartkey-50000000"

	svc := NewBrowser(BrowserConfig{}).entryToService(entry)
	require.NotNil(t, svc)
	assert.Equal(t, testRegistry, svc.Registry)
	assert.Equal(t, uint16(8545), svc.Port)
	assert.Equal(t, []string{"192.168.1.10"}, svc.Addresses)

	assert.Nil(t, NewBrowser(BrowserConfig{Version: 2}).entryToService(entry), "incompatible version")

	entry.Text = []string{"ver=1"}
	assert.Nil(t, NewBrowser(BrowserConfig{}).entryToService(entry), "malformed TXT")
}

func TestAddressAggregation(t *testing.T) {
	merged := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "fe80::1"})
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, merged)

	entry := &zeroconf.ServiceEntry{AddrIPv6: []net.IP{net.ParseIP("fe80::1")}}
	assert.Equal(t, []string{"10.0.0.1"}, removeAddresses(merged, entry))
}
