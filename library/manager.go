package library

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// Every component shares the one storage handle.
type LibraryManager struct {
	db      *Database
	books   *Books
	members *Members
	ledger  *Ledger
	reports *Reports
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	return NewLibraryManagerWith(db), nil
}

// NewLibraryManagerWith wires the components around an existing handle.
func NewLibraryManagerWith(db *Database) *LibraryManager {
	return &LibraryManager{
		db:      db,
		books:   NewBooks(db),
		members: NewMembers(db),
		ledger:  NewLedger(db),
		reports: NewReports(db),
	}
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

func (lm *LibraryManager) Books() *Books        { return lm.books }
func (lm *LibraryManager) Members() *Members    { return lm.members }
func (lm *LibraryManager) Ledger() *Ledger      { return lm.ledger }
func (lm *LibraryManager) Reports() *Reports    { return lm.reports }
func (lm *LibraryManager) Logger() *slog.Logger { return lm.db.logger }

// ------------------ Circulation ------------------

// Borrow lends a copy; see Ledger.Borrow.
func (lm *LibraryManager) Borrow(ctx context.Context, memberID, bookID int64, on Date) (int64, error) {
	return lm.ledger.Borrow(ctx, memberID, bookID, on)
}

// ReturnBook closes a borrow; see Ledger.ReturnBook.
func (lm *LibraryManager) ReturnBook(ctx context.Context, borrowID int64, on Date) (bool, error) {
	return lm.ledger.ReturnBook(ctx, borrowID, on)
}

// ------------------ Snapshot ------------------

// Snapshot is a combined view of the library for dashboards and the CLI
// summary. Its parts are read independently and need not be mutually
// consistent.
type Snapshot struct {
	Catalog      []Book                 `json:"catalog"`
	OpenBorrows  []BorrowDetail         `json:"open_borrows"`
	MostBorrowed []TitleCount           `json:"most_borrowed"`
	Ranking      []MemberCount          `json:"members_by_borrow_count"`
	Mismatches   []AvailabilityMismatch `json:"availability_mismatches"`
}

// Snapshot runs the summary reports concurrently.
func (lm *LibraryManager) Snapshot(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Catalog, err = lm.reports.Catalog(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.OpenBorrows, err = lm.reports.CurrentlyBorrowed(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.MostBorrowed, err = lm.reports.MostBorrowed(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Ranking, err = lm.reports.MembersByBorrowCount(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Mismatches, err = lm.reports.AvailabilityMismatches(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}
