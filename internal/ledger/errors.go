package ledger

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrEmptyDeposit          = errors.New("zero deposit not allowed")
	ErrEmptyWithdraw         = errors.New("zero withdraw not allowed")
	ErrMinTeamMembers        = errors.New("min team size is 2")
	ErrWithdrawLimitExceeded = errors.New("exceeded withdraw limit")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrReentrantCall         = errors.New("reentrant call")
	ErrDuplicateMember       = errors.New("duplicate team member")
	ErrTeamExists            = errors.New("team already exists")
	ErrMemberAssigned        = errors.New("member already belongs to a team")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrAmountOverflow        = errors.New("amount overflow")

	// ErrTransferPending is returned by a Transferer whose payment left custody
	// but could not be confirmed. The debit is kept.
	ErrTransferPending = errors.New("transfer pending confirmation")
)
