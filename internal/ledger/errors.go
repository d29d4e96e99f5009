package ledger

import "errors"

// Every operation aborts on the first violated precondition with one of these
// errors and no state change. Callers match with errors.Is; the wrapped text
// carries the offending item or order.
var (
	ErrUnauthorized          = errors.New("caller is not the owner")
	ErrNotFound              = errors.New("not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrItemUnavailable       = errors.New("item unavailable")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrPaymentMismatch       = errors.New("payment mismatch")
	ErrTransferFailed        = errors.New("transfer failed")
)
