package registry

import "github.com/smartkey-protocol/smartkey-go/pkg/fault"

// Registry errors.
var (
	ErrAccessDenied   = fault.New(fault.KindAuthorization, "REGISTRY_ACCESS_DENIED", "access denied")
	ErrWrongOwner     = fault.New(fault.KindAuthorization, "REGISTRY_WRONG_OWNER", "transfer from incorrect owner")
	ErrInvalidState   = fault.New(fault.KindState, "REGISTRY_INVALID_STATE", "the owner has not engaged with the device")
	ErrDuplicateMint  = fault.New(fault.KindData, "REGISTRY_DUPLICATE_MINT", "credential already minted for this device")
	ErrNotFound       = fault.New(fault.KindData, "REGISTRY_NOT_FOUND", "credential does not exist")
	ErrInvalidAddress = fault.New(fault.KindData, "REGISTRY_INVALID_ADDRESS", "invalid address")
)

var (
	errNotManufacturer  = ErrAccessDenied.WithReason("only the manufacturer may create credentials")
	errNotOwner         = ErrAccessDenied.WithReason("caller is not the owner")
	errNotAuthorized    = ErrAccessDenied.WithReason("caller is not owner nor approved")
	errZeroDevice       = ErrInvalidAddress.WithReason("device address is zero")
	errZeroOwner        = ErrInvalidAddress.WithReason("owner address is zero")
	errZeroRecipient    = ErrInvalidAddress.WithReason("transfer to the zero address")
	errZeroQuery        = ErrInvalidAddress.WithReason("zero address is not a valid holder")
	errApproveOwner     = ErrInvalidAddress.WithReason("approval to current owner")
	errApproveSelf      = ErrInvalidAddress.WithReason("approve to caller")
	errZeroOperator     = ErrInvalidAddress.WithReason("operator address is zero")
)
