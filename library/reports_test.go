package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	alice, bob, carol int64
	hp1, hp2, dune    int64
	closed, open      int64
}

// seed loans two copies of one title and leaves one record open.
func seed(t *testing.T, db *Database) fixture {
	t.Helper()
	ctx := context.Background()
	ledger := NewLedger(db)
	f := fixture{
		alice: addMember(t, db, "Alice"),
		bob:   addMember(t, db, "Bob"),
		carol: addMember(t, db, "Carol"),
		hp1:   addBook(t, db, "Harry Potter", "J.K. Rowling", 1997),
		hp2:   addBook(t, db, "Harry Potter", "J.K. Rowling", 1997),
		dune:  addBook(t, db, "Dune", "Frank Herbert", 1965),
	}
	var err error
	f.closed, err = ledger.Borrow(ctx, f.alice, f.hp1, NewDate(2025, 1, 1))
	require.NoError(t, err)
	ok, err := ledger.ReturnBook(ctx, f.closed, NewDate(2025, 1, 5))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = ledger.Borrow(ctx, f.bob, f.hp2, NewDate(2025, 1, 2))
	require.NoError(t, err)
	f.open, err = ledger.Borrow(ctx, f.alice, f.dune, NewDate(2025, 1, 6))
	require.NoError(t, err)
	return f
}

func TestMostBorrowedSumsCopies(t *testing.T) {
	db := tempDB(t)
	seed(t, db)

	got, err := NewReports(db).MostBorrowed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TitleCount{
		{Title: "Harry Potter", Author: "J.K. Rowling", BorrowCount: 2},
		{Title: "Dune", Author: "Frank Herbert", BorrowCount: 1},
	}, got)
}

func TestMembersByBorrowCountIncludesIdleMembers(t *testing.T) {
	db := tempDB(t)
	f := seed(t, db)

	got, err := NewReports(db).MembersByBorrowCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []MemberCount{
		{MemberID: f.alice, Name: "Alice", BorrowCount: 2},
		{MemberID: f.bob, Name: "Bob", BorrowCount: 1},
		{MemberID: f.carol, Name: "Carol", BorrowCount: 0},
	}, got)
}

func TestCirculationReports(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	f := seed(t, db)
	reports := NewReports(db)

	catalog, err := reports.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune", "Harry Potter", "Harry Potter"}, titles(catalog))

	available, err := reports.CurrentlyAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, f.hp1, available[0].ID)

	borrowed, err := reports.CurrentlyBorrowed(ctx)
	require.NoError(t, err)
	require.Len(t, borrowed, 2)
	assert.Equal(t, f.open, borrowed[0].BorrowID)
	assert.Equal(t, "Alice", *borrowed[0].MemberName)
	assert.Equal(t, "Bob", *borrowed[1].MemberName)

	history, err := reports.BorrowHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, f.open, history[0].BorrowID)
	assert.Equal(t, f.closed, history[2].BorrowID)

	books, err := reports.BookHistory(ctx, f.hp1)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, NewDate(2025, 1, 5), *books[0].ReturnDate)

	mine, err := reports.MemberHistory(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Dune", mine[0].Title)

	members, err := reports.MemberList(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestHistorySurvivesMemberDeletion(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	f := seed(t, db)
	require.NoError(t, NewMembers(db).Delete(ctx, f.carol))

	// Bob still holds a copy
	require.ErrorIs(t, NewMembers(db).Delete(ctx, f.bob), ErrMemberHasOpenBorrows)

	ledger := NewLedger(db)
	bobs, err := ledger.MemberBorrows(ctx, f.bob, true)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	ok, err := ledger.ReturnBook(ctx, bobs[0].BorrowID, NewDate(2025, 1, 9))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, NewMembers(db).Delete(ctx, f.bob))

	history, err := NewReports(db).BookHistory(ctx, f.hp2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].MemberID)
	assert.Nil(t, history[0].MemberName)

	most, err := NewReports(db).MostBorrowed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), most[0].BorrowCount)
}

func TestAvailabilityMismatches(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	f := seed(t, db)
	reports := NewReports(db)

	got, err := reports.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// out of circulation without an open record is not a mismatch
	require.NoError(t, NewBooks(db).OverrideAvailability(ctx, f.hp1, false))
	got, err = reports.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = db.db.Exec(`UPDATE books SET available=1 WHERE book_id=?`, f.dune)
	require.NoError(t, err)

	got, err = reports.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, AvailabilityMismatch{
		BookID: f.dune, Title: "Dune", Author: "Frank Herbert", Available: true, OpenBorrows: 1,
	}, got[0])
}
