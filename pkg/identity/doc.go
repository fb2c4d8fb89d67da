// Package identity defines the principal and credential identifiers used across
// SmartKey.
//
// # Addresses
//
// Principals (manufacturer, owners, users) and devices are identified by a
// 20-byte [Address]. The all-zero address is the "unset" sentinel: a record
// whose user is [ZeroAddress] has no user assigned.
//
// # Token IDs
//
// A credential is identified by a 256-bit [TokenID] derived from the device
// address with [TokenIDFromAddress]. The derivation is the numeric value of the
// address, so the decimal form of a token id equals the decimal form of the
// device address interpreted as an unsigned integer.
//
// # Hashes
//
// Commitments and message digests are 32-byte [Hash] values produced by
// [Keccak256] (the legacy Keccak-256 padding, not NIST SHA3-256).
package identity
