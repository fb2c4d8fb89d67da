package delegation

import (
	"github.com/smartkey-protocol/smartkey-go/pkg/engagement"
	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
)

// Delegation errors.
var (
	ErrBadSignature    = fault.New(fault.KindCrypto, "DELEGATION_BAD_SIGNATURE", "signature does not match the assigned user")
	ErrReplayedRequest = fault.New(fault.KindCrypto, "DELEGATION_REPLAYED_REQUEST", "delegated request was already used")

	// ErrUnregistered is returned when the caller is not a registered device.
	ErrUnregistered = engagement.ErrUnregistered
)

// errMalformed is a bad signature that could not even be parsed.
var errMalformed = ErrBadSignature.WithReason("malformed signature")
