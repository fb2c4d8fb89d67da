package discovery

import (
	"errors"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type of a registry server.
	ServiceType = "_smartkey._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default registry HTTP port.
	DefaultPort = 8545

	// MaxInstanceNameLen is the DNS-SD limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyRegistry     = "reg" // Registry address
	TXTKeyVersion      = "ver" // Major API version
	TXTKeyManufacturer = "mfr" // Manufacturer address (optional)
)

// DefaultTTL is the record TTL used when none is configured.
const DefaultTTL = 120 * time.Second

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidAddress      = errors.New("invalid address in TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrIncompatible        = errors.New("incompatible API version")
)

// RegistryInfo is what a registry server advertises.
type RegistryInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the HTTP port. Zero means DefaultPort.
	Port uint16

	Registry     identity.Address
	Manufacturer identity.Address

	// Version is the major API version.
	Version uint16
}

// RegistryService is a registry found on the network.
type RegistryService struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string

	Registry     identity.Address
	Manufacturer identity.Address
	Version      uint16
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface. Empty means all.
	Interface string

	// TTL is the record TTL. Zero uses the zeroconf default.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface. Empty means all.
	Interface string

	// Version, when non-zero, drops registries advertising another major version.
	Version uint16
}
