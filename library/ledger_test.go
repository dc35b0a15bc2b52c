package library

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	db      *Database
	ledger  *Ledger
	books   *Books
	members *Members
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = tempDB(s.T())
	s.ledger = NewLedger(s.db)
	s.books = NewBooks(s.db)
	s.members = NewMembers(s.db)
}

func (s *LedgerSuite) available(bookID int64) bool {
	b, err := s.books.Get(s.ctx, bookID)
	s.Require().NoError(err)
	return b.Available
}

func (s *LedgerSuite) openRecords(bookID int64) int64 {
	return countRows(s.T(), s.db, `SELECT COUNT(*) FROM borrows WHERE book_id=? AND return_date IS NULL`, bookID)
}

func (s *LedgerSuite) TestBorrowAndReturnLifecycle() {
	alice := addMember(s.T(), s.db, "Alice")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)

	borrowID, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().NoError(err)
	s.False(s.available(hp))

	rec, found, err := s.ledger.Get(s.ctx, borrowID)
	s.Require().NoError(err)
	s.Require().True(found)
	s.True(rec.Open())
	s.Equal(hp, rec.BookID)
	s.Require().NotNil(rec.MemberID)
	s.Equal(alice, *rec.MemberID)
	s.Equal(NewDate(2025, 1, 1), rec.BorrowDate)

	ok, err := s.ledger.ReturnBook(s.ctx, borrowID, NewDate(2025, 1, 10))
	s.Require().NoError(err)
	s.True(ok)
	s.True(s.available(hp))

	rec, _, err = s.ledger.Get(s.ctx, borrowID)
	s.Require().NoError(err)
	s.Require().NotNil(rec.ReturnDate)
	s.Equal(NewDate(2025, 1, 10), *rec.ReturnDate)

	ok, err = s.ledger.ReturnBook(s.ctx, borrowID, NewDate(2025, 1, 11))
	s.Require().NoError(err)
	s.False(ok, "a closed record cannot be returned twice")

	rec, _, err = s.ledger.Get(s.ctx, borrowID)
	s.Require().NoError(err)
	s.Equal(NewDate(2025, 1, 10), *rec.ReturnDate, "first return date is kept")

	again, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 2, 1))
	s.Require().NoError(err)
	s.NotEqual(borrowID, again)
	s.False(s.available(hp))
}

func (s *LedgerSuite) TestBorrowRejectsUnavailableCopy() {
	alice := addMember(s.T(), s.db, "Alice")
	bob := addMember(s.T(), s.db, "Bob")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)

	_, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().NoError(err)

	_, err = s.ledger.Borrow(s.ctx, bob, hp, NewDate(2025, 1, 2))
	s.ErrorIs(err, ErrBookUnavailable)
	s.True(IsRejection(err))
	s.Equal(int64(1), s.openRecords(hp))
	s.Equal(int64(1), countRows(s.T(), s.db, `SELECT COUNT(*) FROM borrows`))
}

func (s *LedgerSuite) TestBorrowRejectionOrder() {
	alice := addMember(s.T(), s.db, "Alice")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)
	_, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().NoError(err)

	// member is checked before the copy
	_, err = s.ledger.Borrow(s.ctx, 999, hp, NewDate(2025, 1, 2))
	s.ErrorIs(err, ErrMemberNotFound)
	_, err = s.ledger.Borrow(s.ctx, 999, 999, NewDate(2025, 1, 2))
	s.ErrorIs(err, ErrMemberNotFound)

	_, err = s.ledger.Borrow(s.ctx, alice, 999, NewDate(2025, 1, 2))
	s.ErrorIs(err, ErrBookNotFound)

	s.Equal(int64(1), countRows(s.T(), s.db, `SELECT COUNT(*) FROM borrows`))
}

func (s *LedgerSuite) TestReturnUnknownRecord() {
	ok, err := s.ledger.ReturnBook(s.ctx, 42, Today())
	s.Require().NoError(err)
	s.False(ok)

	_, found, err := s.ledger.Get(s.ctx, 42)
	s.Require().NoError(err)
	s.False(found)
}

func (s *LedgerSuite) TestConcurrentBorrowsOfOneCopy() {
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)
	const borrowers = 8
	ids := make([]int64, borrowers)
	for i := range ids {
		ids[i] = addMember(s.T(), s.db, "Reader")
	}

	var won, lost atomic.Int32
	var g errgroup.Group
	for _, memberID := range ids {
		g.Go(func() error {
			_, err := s.ledger.Borrow(s.ctx, memberID, hp, NewDate(2025, 1, 1))
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, ErrBookUnavailable):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), won.Load())
	s.Equal(int32(borrowers-1), lost.Load())
	s.Equal(int64(1), s.openRecords(hp))
	s.False(s.available(hp))
}

func (s *LedgerSuite) TestConcurrentReturnsOfOneRecord() {
	alice := addMember(s.T(), s.db, "Alice")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)
	borrowID, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().NoError(err)

	var returned atomic.Int32
	var g errgroup.Group
	for range 6 {
		g.Go(func() error {
			ok, err := s.ledger.ReturnBook(s.ctx, borrowID, NewDate(2025, 1, 5))
			if ok {
				returned.Add(1)
			}
			return err
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), returned.Load())
	s.True(s.available(hp))
	s.Zero(s.openRecords(hp))
}

func (s *LedgerSuite) TestFailedInsertLeavesCopyAvailable() {
	alice := addMember(s.T(), s.db, "Alice")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)
	_, err := s.db.db.Exec(`CREATE TRIGGER refuse_borrows BEFORE INSERT ON borrows
		BEGIN SELECT RAISE(ABORT, 'insert refused'); END;`)
	s.Require().NoError(err)

	_, err = s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().Error(err)
	s.False(IsRejection(err))
	s.True(s.available(hp), "availability flip is rolled back with the failed insert")
	s.Zero(countRows(s.T(), s.db, `SELECT COUNT(*) FROM borrows`))
}

func (s *LedgerSuite) TestReturnThatCannotReleaseCopyRollsBack() {
	alice := addMember(s.T(), s.db, "Alice")
	hp := addBook(s.T(), s.db, "Harry Potter", "J.K. Rowling", 1997)
	borrowID, err := s.ledger.Borrow(s.ctx, alice, hp, NewDate(2025, 1, 1))
	s.Require().NoError(err)

	_, err = s.db.db.Exec(`CREATE TRIGGER pin_books BEFORE UPDATE OF available ON books
		WHEN NEW.available = 1 BEGIN SELECT RAISE(IGNORE); END;`)
	s.Require().NoError(err)

	ok, err := s.ledger.ReturnBook(s.ctx, borrowID, NewDate(2025, 1, 5))
	s.ErrorIs(err, ErrConsistency)
	s.False(IsRejection(err))
	s.False(ok)

	rec, _, err := s.ledger.Get(s.ctx, borrowID)
	s.Require().NoError(err)
	s.True(rec.Open(), "closing the record is rolled back")
	s.False(s.available(hp))
}

func (s *LedgerSuite) TestMemberBorrows() {
	alice := addMember(s.T(), s.db, "Alice")
	_, err := s.members.Update(s.ctx, alice, MemberUpdate{Phone: strPtr("050-1234567")})
	s.Require().NoError(err)
	b1 := addBook(s.T(), s.db, "Dune", "Frank Herbert", 1965)
	b2 := addBook(s.T(), s.db, "Emma", "Jane Austen", 1815)

	r1, err := s.ledger.Borrow(s.ctx, alice, b1, NewDate(2025, 1, 1))
	s.Require().NoError(err)
	r2, err := s.ledger.Borrow(s.ctx, alice, b2, NewDate(2025, 1, 3))
	s.Require().NoError(err)
	_, err = s.ledger.ReturnBook(s.ctx, r1, NewDate(2025, 1, 4))
	s.Require().NoError(err)

	all, err := s.ledger.MemberBorrows(s.ctx, alice, false)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(r2, all[0].BorrowID, "newest first")
	s.Equal("Emma", all[0].Title)
	s.Nil(all[0].ReturnDate)
	s.Equal(r1, all[1].BorrowID)
	s.NotNil(all[1].ReturnDate)

	active, err := s.ledger.MemberBorrows(s.ctx, alice, true)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(r2, active[0].BorrowID)

	byPhone, err := s.ledger.MemberBorrowsByPhone(s.ctx, "050-1234567", true)
	s.Require().NoError(err)
	s.Equal(active, byPhone)

	unknown, err := s.ledger.MemberBorrowsByPhone(s.ctx, "000", false)
	s.Require().NoError(err)
	s.Empty(unknown)
}

func (s *LedgerSuite) TestOpenBorrowsAndBorrowers() {
	alice := addMember(s.T(), s.db, "Alice")
	bob := addMember(s.T(), s.db, "Bob")
	addMember(s.T(), s.db, "Carol")
	dune := addBook(s.T(), s.db, "Dune", "Frank Herbert", 1965)
	emma := addBook(s.T(), s.db, "Emma", "Jane Austen", 1815)

	r1, err := s.ledger.Borrow(s.ctx, alice, dune, NewDate(2025, 1, 1))
	s.Require().NoError(err)
	_, err = s.ledger.ReturnBook(s.ctx, r1, NewDate(2025, 1, 2))
	s.Require().NoError(err)
	r2, err := s.ledger.Borrow(s.ctx, bob, dune, NewDate(2025, 1, 3))
	s.Require().NoError(err)
	r3, err := s.ledger.Borrow(s.ctx, alice, emma, NewDate(2025, 1, 4))
	s.Require().NoError(err)

	open, err := s.ledger.OpenBorrows(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(open, 2)
	s.Equal(r3, open[0].BorrowID)
	s.Equal("Alice", *open[0].MemberName)
	s.Equal(r2, open[1].BorrowID)
	s.Equal("Dune", open[1].Title)

	holders, err := s.ledger.MembersWithOpenBorrows(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(holders, 2)
	s.Equal("Alice", holders[0].Name)
	s.Equal("Bob", holders[1].Name)

	borrowers, err := s.ledger.BorrowersOfBook(s.ctx, dune)
	s.Require().NoError(err)
	s.Require().Len(borrowers, 2)
	s.Equal("Bob", *borrowers[0].MemberName)
	s.Equal("Alice", *borrowers[1].MemberName)
	s.Equal(NewDate(2025, 1, 2), *borrowers[1].ReturnDate)

	none, err := s.ledger.BorrowersOfBook(s.ctx, 999)
	s.Require().NoError(err)
	s.Empty(none)
}
