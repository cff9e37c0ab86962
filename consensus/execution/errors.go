package execution

import "github.com/pkg/errors"

// Sentinel errors returned by ValidateBody.
var (
	// ErrPayloadInvalidated is returned when the execution engine rejected
	// the payload outright (INVALID / INVALID_BLOCK_HASH on new_payload, or
	// INVALID on a full block's forkchoice_update).
	ErrPayloadInvalidated = errors.New("execution: payload invalidated by execution engine")
	// ErrPayloadNotValidated is returned when the engine has not yet
	// confirmed validity (SYNCING / ACCEPTED) and optimistic import is not
	// enabled for the phase that requires a definitive answer.
	ErrPayloadNotValidated = errors.New("execution: payload not yet validated by execution engine")
	// ErrUnknown is returned for any engine response combination the policy
	// table does not recognize.
	ErrUnknown = errors.New("execution: unrecognized execution engine response")
)
