package library

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

// Reports holds the read-only queries used for operational visibility.
// Nothing here writes, so none of it needs a transaction.
type Reports struct {
	db *Database
}

// NewReports returns the reporting layer backed by db.
func NewReports(db *Database) *Reports {
	return &Reports{db: db}
}

var (
	colBorrowID   = goqu.I("b.borrow_id")
	colBorrowDate = goqu.I("b.borrow_date")
	colReturnDate = goqu.I("b.return_date")
	colBookID     = goqu.I("bk.book_id")
	colTitle      = goqu.I("bk.title")
	colAuthor     = goqu.I("bk.author")
	colYear       = goqu.I("bk.year")
	colAvailable  = goqu.I("bk.available")
	colMemberID   = goqu.I("m.member_id")
	colName       = goqu.I("m.name")
	colPhone      = goqu.I("m.phone")
	colEmail      = goqu.I("m.email")
	borrowCount   = goqu.COUNT(colBorrowID)
)

func (r *Reports) borrowsJoined() *goqu.SelectDataset {
	return r.db.dialect.From(goqu.T("borrows").As("b")).
		Join(goqu.T("books").As("bk"), goqu.On(colBookID.Eq(goqu.I("b.book_id")))).
		LeftJoin(goqu.T("members").As("m"), goqu.On(colMemberID.Eq(goqu.I("b.member_id"))))
}

// Catalog lists every copy, available or not, by title.
func (r *Reports) Catalog(ctx context.Context) ([]Book, error) {
	ds := r.db.dialect.From(goqu.T("books").As("bk")).
		Select(colBookID, colTitle, colAuthor, colYear, colAvailable).
		Order(colTitle.Asc(), colBookID.Asc())
	return selectReport[Book](ctx, r, "catalog", ds)
}

// MemberList lists every member by name.
func (r *Reports) MemberList(ctx context.Context) ([]Member, error) {
	ds := r.db.dialect.From(goqu.T("members").As("m")).
		Select(colMemberID, colName, colPhone, colEmail).
		Order(colName.Asc(), colMemberID.Asc())
	return selectReport[Member](ctx, r, "member list", ds)
}

// BorrowHistory lists every record, open and closed, newest first.
func (r *Reports) BorrowHistory(ctx context.Context) ([]BorrowDetail, error) {
	ds := r.borrowsJoined().
		Select(colBorrowID, colBorrowDate, colReturnDate, colBookID, colTitle, colAuthor, colYear,
			goqu.I("b.member_id"), colName, colPhone, colEmail).
		Order(colBorrowDate.Desc(), colReturnDate.Desc(), colBorrowID.Desc())
	return selectReport[BorrowDetail](ctx, r, "borrow history", ds)
}

// BookHistory lists the records of one copy, newest first.
func (r *Reports) BookHistory(ctx context.Context, bookID int64) ([]BorrowDetail, error) {
	ds := r.borrowsJoined().
		Select(colBorrowID, colBorrowDate, colReturnDate, colBookID,
			goqu.I("b.member_id"), colName, colPhone, colEmail).
		Where(colBookID.Eq(bookID)).
		Order(colBorrowDate.Desc(), colBorrowID.Desc())
	return selectReport[BorrowDetail](ctx, r, "book history", ds)
}

// MemberHistory lists the records of one member, newest first.
func (r *Reports) MemberHistory(ctx context.Context, memberID int64) ([]BorrowDetail, error) {
	ds := r.borrowsJoined().
		Select(colBorrowID, colBorrowDate, colReturnDate, colBookID, colTitle, colAuthor).
		Where(goqu.I("b.member_id").Eq(memberID)).
		Order(colBorrowDate.Desc(), colBorrowID.Desc())
	return selectReport[BorrowDetail](ctx, r, "member history", ds)
}

// CurrentlyAvailable lists copies that can be borrowed now.
func (r *Reports) CurrentlyAvailable(ctx context.Context) ([]Book, error) {
	ds := r.db.dialect.From(goqu.T("books").As("bk")).
		Select(colBookID, colTitle, colAuthor, colYear, colAvailable).
		Where(colAvailable.Eq(1)).
		Order(colTitle.Asc(), colBookID.Asc())
	return selectReport[Book](ctx, r, "available books", ds)
}

// CurrentlyBorrowed lists open records with copy and member details.
func (r *Reports) CurrentlyBorrowed(ctx context.Context) ([]BorrowDetail, error) {
	ds := r.borrowsJoined().
		Select(colBorrowID, colBorrowDate, colBookID, colTitle, colAuthor, colYear,
			goqu.I("b.member_id"), colName, colPhone, colEmail).
		Where(colReturnDate.IsNull()).
		Order(colBorrowDate.Desc(), colBorrowID.Desc())
	return selectReport[BorrowDetail](ctx, r, "borrowed books", ds)
}

// MostBorrowed counts borrows per title and author, summing over all copies.
func (r *Reports) MostBorrowed(ctx context.Context) ([]TitleCount, error) {
	ds := r.db.dialect.From(goqu.T("borrows").As("b")).
		Join(goqu.T("books").As("bk"), goqu.On(colBookID.Eq(goqu.I("b.book_id")))).
		Select(colTitle, colAuthor, borrowCount.As("borrow_count")).
		GroupBy(colTitle, colAuthor).
		Order(goqu.C("borrow_count").Desc(), colTitle.Asc(), colAuthor.Asc())
	return selectReport[TitleCount](ctx, r, "most borrowed", ds)
}

// MembersByBorrowCount ranks members by their number of records. Members
// who never borrowed are listed with zero.
func (r *Reports) MembersByBorrowCount(ctx context.Context) ([]MemberCount, error) {
	ds := r.db.dialect.From(goqu.T("members").As("m")).
		LeftJoin(goqu.T("borrows").As("b"), goqu.On(goqu.I("b.member_id").Eq(colMemberID))).
		Select(colMemberID, colName, borrowCount.As("borrow_count")).
		GroupBy(colMemberID, colName).
		Order(goqu.C("borrow_count").Desc(), colName.Asc(), colMemberID.Asc())
	return selectReport[MemberCount](ctx, r, "members by borrow count", ds)
}

// AvailabilityMismatches lists copies flagged available while an open
// record holds them, and copies with more than one open record. Copies
// taken out of circulation by an override (unavailable, no open record)
// are not mismatches.
func (r *Reports) AvailabilityMismatches(ctx context.Context) ([]AvailabilityMismatch, error) {
	openCount := goqu.COUNT(colBorrowID)
	ds := r.db.dialect.From(goqu.T("books").As("bk")).
		LeftJoin(goqu.T("borrows").As("b"), goqu.On(
			goqu.I("b.book_id").Eq(colBookID),
			colReturnDate.IsNull(),
		)).
		Select(colBookID, colTitle, colAuthor, colAvailable, openCount.As("open_borrows")).
		GroupBy(colBookID, colTitle, colAuthor, colAvailable).
		Having(goqu.Or(
			goqu.And(colAvailable.Eq(1), openCount.Gt(0)),
			openCount.Gt(1),
		)).
		Order(colBookID.Asc())
	return selectReport[AvailabilityMismatch](ctx, r, "availability mismatches", ds)
}

func selectReport[T any](ctx context.Context, r *Reports, name string, ds *goqu.SelectDataset) ([]T, error) {
	rows := []T{}
	if err := r.db.selectInto(ctx, r.db.db, &rows, ds); err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	return rows, nil
}
