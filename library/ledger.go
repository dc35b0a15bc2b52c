package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// Ledger creates and closes borrow records. Each borrow and each return is
// one transaction: the availability flip and the record write commit or
// roll back together.
//
// Lifecycle of a record: created open by Borrow, closed by ReturnBook,
// never reopened.
type Ledger struct {
	db *Database
}

// NewLedger returns a ledger backed by db.
func NewLedger(db *Database) *Ledger {
	return &Ledger{db: db}
}

// Borrow lends a copy to a member on the given day and returns the new
// record's id.
//
// Preconditions are checked in order and the first failure is returned as a
// rejection: ErrMemberNotFound, then ErrBookNotFound or ErrBookUnavailable.
// The copy is taken with a single conditional update, so of two concurrent
// borrows of the same copy exactly one succeeds.
func (l *Ledger) Borrow(ctx context.Context, memberID, bookID int64, on Date) (int64, error) {
	var borrowID int64
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		found, err := memberExists(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if !found {
			return ErrMemberNotFound
		}

		n, err := execAffected(ctx, tx,
			`UPDATE books SET available=0 WHERE book_id=? AND available=1`, bookID)
		if err != nil {
			return fmt.Errorf("take book %d: %w", bookID, err)
		}
		if n == 0 {
			if _, err := getBook(ctx, tx, bookID); err != nil {
				return err
			}
			return ErrBookUnavailable
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO borrows(book_id,member_id,borrow_date,return_date) VALUES(?,?,?,NULL)`,
			bookID, memberID, on)
		if isUniqueViolation(err) {
			// another open record already holds this copy
			return ErrBookUnavailable
		}
		if err != nil {
			return fmt.Errorf("insert borrow record: %w", err)
		}
		borrowID, err = res.LastInsertId()
		return err
	})

	logger := l.db.logger.With(
		slog.Int64(logAttrMemberID, memberID),
		slog.Int64(logAttrBookID, bookID),
		slog.String(logAttrDate, on.String()),
	)
	switch {
	case err == nil:
		logger.Info("book borrowed", slog.Int64(logAttrBorrowID, borrowID))
		return borrowID, nil
	case IsRejection(err):
		logger.Debug("borrow rejected", slog.String(logAttrReason, err.Error()))
	default:
		logger.Error("borrow failed", slog.String(logAttrError, err.Error()))
	}
	return 0, err
}

// ReturnBook closes an open borrow record and makes its copy available
// again. It returns false when the record does not exist or is already
// closed; of two concurrent returns of one record exactly one returns true.
//
// If the record closes but the copy cannot be marked available, the whole
// return is rolled back and an error wrapping ErrConsistency is returned.
func (l *Ledger) ReturnBook(ctx context.Context, borrowID int64, on Date) (bool, error) {
	var bookID int64
	returned := false
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		err := sqlx.GetContext(ctx, tx, &bookID,
			`SELECT book_id FROM borrows WHERE borrow_id=? AND return_date IS NULL`, borrowID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find open borrow %d: %w", borrowID, err)
		}

		n, err := execAffected(ctx, tx,
			`UPDATE borrows SET return_date=? WHERE borrow_id=? AND return_date IS NULL`, on, borrowID)
		if err != nil {
			return fmt.Errorf("close borrow %d: %w", borrowID, err)
		}
		if n == 0 {
			return nil
		}

		n, err = execAffected(ctx, tx, `UPDATE books SET available=1 WHERE book_id=?`, bookID)
		if err != nil {
			return fmt.Errorf("release book %d: %w", bookID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: borrow %d closed but book %d was not released",
				ErrConsistency, borrowID, bookID)
		}
		returned = true
		return nil
	})

	logger := l.db.logger.With(
		slog.Int64(logAttrBorrowID, borrowID),
		slog.String(logAttrDate, on.String()),
	)
	switch {
	case err != nil && errors.Is(err, ErrConsistency):
		logger.Error("consistency violation on return", slog.Int64(logAttrBookID, bookID),
			slog.String(logAttrError, err.Error()))
		return false, err
	case err != nil:
		logger.Error("return failed", slog.String(logAttrError, err.Error()))
		return false, err
	case !returned:
		logger.Debug("return rejected", slog.String(logAttrReason, "no open borrow"))
		return false, nil
	}
	logger.Info("book returned", slog.Int64(logAttrBookID, bookID))
	return true, nil
}

// Get returns one borrow record.
func (l *Ledger) Get(ctx context.Context, borrowID int64) (*BorrowRecord, bool, error) {
	var rec BorrowRecord
	err := sqlx.GetContext(ctx, l.db.db, &rec,
		`SELECT borrow_id,book_id,member_id,borrow_date,return_date FROM borrows WHERE borrow_id=?`, borrowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get borrow %d: %w", borrowID, err)
	}
	return &rec, true, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func (l *Ledger) borrowsWithBooks() *goqu.SelectDataset {
	return l.db.dialect.From(goqu.T("borrows").As("b")).
		Join(goqu.T("books").As("bk"), goqu.On(goqu.I("bk.book_id").Eq(goqu.I("b.book_id"))))
}

// MemberBorrows returns the member's records with book details, newest
// first. With activeOnly only open records are returned.
func (l *Ledger) MemberBorrows(ctx context.Context, memberID int64, activeOnly bool) ([]BorrowDetail, error) {
	ds := l.borrowsWithBooks().
		Select(
			goqu.I("b.borrow_id"), goqu.I("b.book_id"), goqu.I("bk.title"), goqu.I("bk.author"),
			goqu.I("bk.year"), goqu.I("b.borrow_date"), goqu.I("b.return_date"),
		).
		Where(goqu.I("b.member_id").Eq(memberID)).
		Order(goqu.I("b.borrow_date").Desc(), goqu.I("b.borrow_id").Desc())
	if activeOnly {
		ds = ds.Where(goqu.I("b.return_date").IsNull())
	}
	return l.details(ctx, ds)
}

// MemberBorrowsByPhone is MemberBorrows keyed by phone number. An unknown
// phone yields an empty list.
func (l *Ledger) MemberBorrowsByPhone(ctx context.Context, phone string, activeOnly bool) ([]BorrowDetail, error) {
	member, err := NewMembers(l.db).FindByPhone(ctx, phone)
	if errors.Is(err, ErrMemberNotFound) {
		return []BorrowDetail{}, nil
	}
	if err != nil {
		return nil, err
	}
	return l.MemberBorrows(ctx, member.ID, activeOnly)
}

// OpenBorrows returns every open record with copy and member details.
func (l *Ledger) OpenBorrows(ctx context.Context) ([]BorrowDetail, error) {
	ds := l.borrowsWithBooks().
		LeftJoin(goqu.T("members").As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("b.member_id")))).
		Select(
			goqu.I("b.borrow_id"), goqu.I("b.borrow_date"), goqu.I("b.book_id"),
			goqu.I("bk.title"), goqu.I("bk.author"), goqu.I("bk.year"),
			goqu.I("b.member_id"), goqu.I("m.name"), goqu.I("m.phone"), goqu.I("m.email"),
		).
		Where(goqu.I("b.return_date").IsNull()).
		Order(goqu.I("b.borrow_date").Desc(), goqu.I("b.borrow_id").Desc())
	return l.details(ctx, ds)
}

// MembersWithOpenBorrows returns members holding at least one copy, by name.
func (l *Ledger) MembersWithOpenBorrows(ctx context.Context) ([]Member, error) {
	ds := l.db.dialect.From(goqu.T("borrows").As("b")).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("b.member_id")))).
		SelectDistinct(goqu.I("m.member_id"), goqu.I("m.name"), goqu.I("m.phone"), goqu.I("m.email")).
		Where(goqu.I("b.return_date").IsNull()).
		Order(goqu.I("m.name").Asc())
	members := []Member{}
	if err := l.db.selectInto(ctx, l.db.db, &members, ds); err != nil {
		return nil, fmt.Errorf("list members with open borrows: %w", err)
	}
	return members, nil
}

// BorrowersOfBook returns who borrowed a copy and when, newest first.
func (l *Ledger) BorrowersOfBook(ctx context.Context, bookID int64) ([]BorrowDetail, error) {
	ds := l.db.dialect.From(goqu.T("borrows").As("b")).
		LeftJoin(goqu.T("members").As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("b.member_id")))).
		Select(
			goqu.I("b.member_id"), goqu.I("m.name"), goqu.I("m.phone"), goqu.I("m.email"),
			goqu.I("b.borrow_id"), goqu.I("b.book_id"), goqu.I("b.borrow_date"), goqu.I("b.return_date"),
		).
		Where(goqu.I("b.book_id").Eq(bookID)).
		Order(goqu.I("b.borrow_date").Desc(), goqu.I("b.borrow_id").Desc())
	return l.details(ctx, ds)
}

func (l *Ledger) details(ctx context.Context, ds *goqu.SelectDataset) ([]BorrowDetail, error) {
	rows := []BorrowDetail{}
	if err := l.db.selectInto(ctx, l.db.db, &rows, ds); err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}
	return rows, nil
}
