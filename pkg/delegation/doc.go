// Package delegation lets a device engage an absent user on the user's behalf.
//
// Instead of the interactive hash exchange of package engagement, the user
// signs a short request with their secp256k1 key and hands the signature to
// the device. The device submits it; if the recovered signer is the user
// assigned to the credential, the credential moves straight to
// EngagedWithUser.
//
// The signed message is
//
//	keccak256(requestType || uint256(timestamp) || uint256(nonce))
//
// with both integers as 32-byte big-endian words. Signatures are 65 bytes,
// R || S || V, where V is the recovery id (0/1 or 27/28).
//
// # Replay
//
// A signature stays valid for as long as the user stays assigned. Nothing in
// the message binds it to a single use, so by default a captured signature can
// be submitted again. Configure a [ReplayLedger] to reject a
// (device, signer, timestamp, nonce) tuple that was already accepted.
package delegation
