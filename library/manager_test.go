package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *LibraryManager {
	dir := t.TempDir()
	mgr, err := NewLibraryManager(filepath.Join(dir, "lib.db"))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestManagerBorrowPreconditions(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	bookID, _ := mgr.Books().Add(ctx, NewBook{Title: "Test Book", Author: "Test Author"})
	outID, _ := mgr.Books().Add(ctx, NewBook{Title: "Out Book", Author: "Test Author"})
	memberID, _ := mgr.Members().Add(ctx, NewMember{Name: "Test Member"})
	member2ID, _ := mgr.Members().Add(ctx, NewMember{Name: "Member 2"})

	// Lend the second copy to member 2
	_, err := mgr.Borrow(ctx, member2ID, outID, NewDate(2025, 1, 1))
	require.NoError(t, err)

	tests := []struct {
		name     string
		bookID   int64
		memberID int64
		wantErr  error
	}{
		{
			name:     "Available book, known member",
			bookID:   bookID,
			memberID: memberID,
		},
		{
			name:     "Book out with another member",
			bookID:   outID,
			memberID: memberID,
			wantErr:  ErrBookUnavailable,
		},
		{
			name:     "Book out with the requesting member",
			bookID:   outID,
			memberID: member2ID,
			wantErr:  ErrBookUnavailable,
		},
		{
			name:     "Non-existent book",
			bookID:   999,
			memberID: memberID,
			wantErr:  ErrBookNotFound,
		},
		{
			name:     "Non-existent member",
			bookID:   bookID,
			memberID: 999,
			wantErr:  ErrMemberNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := mgr.Borrow(ctx, tt.memberID, tt.bookID, NewDate(2025, 2, 1))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsRejection(err))
				assert.Zero(t, id)
				return
			}
			require.NoError(t, err)
			ok, err := mgr.ReturnBook(ctx, id, NewDate(2025, 2, 3))
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	f := seed(t, mgr.db)

	snap, err := mgr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Catalog, 3)
	assert.Len(t, snap.OpenBorrows, 2)
	assert.Equal(t, f.open, snap.OpenBorrows[0].BorrowID)
	require.NotEmpty(t, snap.MostBorrowed)
	assert.Equal(t, "Harry Potter", snap.MostBorrowed[0].Title)
	assert.Len(t, snap.Ranking, 3)
	assert.Empty(t, snap.Mismatches)
	assert.NotNil(t, mgr.Logger())
}

func TestSnapshotHonorsCancellation(t *testing.T) {
	mgr := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Snapshot(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
