package engagement

import "github.com/smartkey-protocol/smartkey-go/pkg/fault"

// Protocol errors.
var (
	ErrAccessDenied      = fault.New(fault.KindAuthorization, "ENGAGEMENT_ACCESS_DENIED", "only the owner may do this")
	ErrUnregistered      = fault.New(fault.KindAuthorization, "ENGAGEMENT_UNREGISTERED", "caller is not the registered device")
	ErrInvalidUser       = fault.New(fault.KindAuthorization, "ENGAGEMENT_INVALID_USER", "caller is not the assigned user")
	ErrInvalidState      = fault.New(fault.KindState, "ENGAGEMENT_INVALID_STATE", "operation not allowed in the current state")
	ErrNoUserPending     = fault.New(fault.KindState, "ENGAGEMENT_NO_USER_PENDING", "no user is waiting for engagement")
	ErrInvalidCommitment = fault.New(fault.KindData, "ENGAGEMENT_INVALID_COMMITMENT", "engagement data is incomplete")
	ErrNotStarted        = fault.New(fault.KindCrypto, "ENGAGEMENT_NOT_STARTED", "no engagement session was started")
	ErrHandshakeFailed   = fault.New(fault.KindCrypto, "ENGAGEMENT_HANDSHAKE_FAILED", "ECDH setup fail")
)

var (
	errUserBeforeOwner = ErrInvalidState.WithReason("cannot set a user before the owner engaged with the device")
	errRedundantUser   = ErrInvalidState.WithReason("no user is assigned; nothing to clear")
	errNoPublicKey     = ErrInvalidCommitment.WithReason("ephemeral public key is empty")
	errNoExpectedHash  = ErrInvalidCommitment.WithReason("expected hash is zero")
)
