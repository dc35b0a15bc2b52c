package library

import "errors"

// ErrRejected matches every ordinary precondition failure: an id that does
// not resolve, a copy that is out, a delete blocked by references. Callers
// test for it with errors.Is; anything else returned by this package is a
// storage failure or ErrConsistency.
var ErrRejected = errors.New("rejected")

type rejection string

func (r rejection) Error() string { return string(r) }

func (r rejection) Is(target error) bool { return target == ErrRejected }

var (
	ErrMemberNotFound       error = rejection("member not found")
	ErrBookNotFound         error = rejection("book not found")
	ErrBookUnavailable      error = rejection("book is not available")
	ErrBookHasHistory       error = rejection("book has borrow records")
	ErrMemberHasOpenBorrows error = rejection("member has open borrows")
	ErrOpenBorrowExists     error = rejection("book has an open borrow record")
	ErrEmailTaken           error = rejection("email already registered")
	ErrInvalidCredentials   error = rejection("invalid credentials")
	ErrInvalidInput         error = rejection("invalid input")
)

// ErrConsistency reports that a borrow record was closed but its copy could
// not be marked available. The surrounding transaction is rolled back before
// it is returned.
var ErrConsistency = errors.New("borrow ledger and book availability disagree")

// IsRejection reports whether err is an ordinary precondition failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}
