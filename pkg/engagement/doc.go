// Package engagement implements the owner/user pairing state machine of a
// SmartKey credential.
//
// A principal proves it shares a secret with the device through a
// commitment/confirmation exchange. Both sides derive the secret off-protocol
// (for example with ECDH, see package pairing) and submit only its hash:
//
//	owner                         protocol                      device
//	  |-- StartOwnerEngagement --->|                               |
//	  |   (ephemeral key, hash)    |<------ OwnerEngagement -------|
//	  |                            |        (hash)                 |
//	  |                 hashes equal: EngagedWithOwner             |
//
// The protocol only compares the two hashes. It never sees the secret and
// does not validate how it was derived.
//
// State transitions:
//
//	WaitingForOwner -> EngagedWithOwner -> {WaitingForUser, EngagedWithUser}
//	                         ^                          |
//	                         +--------------------------+
//
// There is no terminal state; burning a credential removes its record
// regardless of state.
package engagement
