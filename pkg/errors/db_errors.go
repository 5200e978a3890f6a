package custom_error

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type UniqueViolationError struct {
	message string
	code    string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("%s (code: %s)", e.message, e.code)
}

type ForeignKeyViolationError struct {
	message string
	code    string
}

func (e *ForeignKeyViolationError) Error() string {
	return fmt.Sprintf("%s (code: %s)", e.message, e.code)
}

// WrapDBError maps a postgres error code onto the typed errors handlers
// switch on. Unknown codes become a plain error.
func WrapDBError(message, code string) error {
	switch code {
	case codeUniqueViolation:
		return &UniqueViolationError{message: message, code: code}
	case codeForeignKeyViolation:
		return &ForeignKeyViolationError{
			message: "Referenced resource does not exist or is still in use: " + message,
			code:    code,
		}
	default:
		return fmt.Errorf("uncategorized error occurred with code %s: %s", code, message)
	}
}

// FromPQ wraps err with WrapDBError when it carries a *pq.Error, and with
// message otherwise.
func FromPQ(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return WrapDBError(message+": "+pqErr.Message, string(pqErr.Code))
	}
	return fmt.Errorf("%s: %w", message, err)
}
