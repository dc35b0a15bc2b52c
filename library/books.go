package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// Books is the book registry. Availability is written here only by the
// administrative override; the ledger owns it otherwise.
type Books struct {
	db *Database
}

// NewBooks returns a registry backed by db.
func NewBooks(db *Database) *Books {
	return &Books{db: db}
}

var bookColumns = []any{"book_id", "title", "author", "year", "available"}

func (b *Books) selectBooks() *goqu.SelectDataset {
	return b.db.dialect.From("books").Select(bookColumns...)
}

// Add registers one copy and returns its id. Adding the same title, author
// and year again registers another copy.
func (b *Books) Add(ctx context.Context, nb NewBook) (int64, error) {
	title, author := strings.TrimSpace(nb.Title), strings.TrimSpace(nb.Author)
	if title == "" || author == "" {
		return 0, fmt.Errorf("title and author are required: %w", ErrInvalidInput)
	}
	res, err := b.db.addBookStmt.ExecContext(ctx, title, author, nb.Year)
	if err != nil {
		return 0, fmt.Errorf("add book: %w", err)
	}
	return res.LastInsertId()
}

// Get returns one copy, or ErrBookNotFound.
func (b *Books) Get(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, b.db.db, id)
}

func getBook(ctx context.Context, q sqlx.QueryerContext, id int64) (*Book, error) {
	var book Book
	err := sqlx.GetContext(ctx, q, &book,
		`SELECT book_id,title,author,year,available FROM books WHERE book_id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &book, nil
}

// List returns every copy ordered by id.
func (b *Books) List(ctx context.Context) ([]Book, error) {
	return b.query(ctx, b.selectBooks().Order(goqu.C("book_id").Asc()))
}

// Find returns copies whose title contains keyword, ordered by title.
func (b *Books) Find(ctx context.Context, keyword string) ([]Book, error) {
	ds := b.selectBooks().
		Where(goqu.C("title").Like("%" + keyword + "%")).
		Order(goqu.C("title").Asc(), goqu.C("book_id").Asc())
	return b.query(ctx, ds)
}

// Available returns copies that can be borrowed now, ordered by title.
func (b *Books) Available(ctx context.Context) ([]Book, error) {
	ds := b.selectBooks().
		Where(goqu.C("available").Eq(1)).
		Order(goqu.C("title").Asc(), goqu.C("book_id").Asc())
	return b.query(ctx, ds)
}

// ByAuthor returns copies by an exact author match, ordered by year then title.
func (b *Books) ByAuthor(ctx context.Context, author string) ([]Book, error) {
	ds := b.selectBooks().
		Where(goqu.C("author").Eq(author)).
		Order(goqu.C("year").Asc(), goqu.C("title").Asc())
	return b.query(ctx, ds)
}

// BetweenYears returns copies published in [from, to]. Reversed bounds are
// swapped; copies without a year never match.
func (b *Books) BetweenYears(ctx context.Context, from, to int) ([]Book, error) {
	if from > to {
		from, to = to, from
	}
	ds := b.selectBooks().
		Where(goqu.C("year").Between(goqu.Range(from, to))).
		Order(goqu.C("year").Asc(), goqu.C("title").Asc())
	return b.query(ctx, ds)
}

func (b *Books) query(ctx context.Context, ds *goqu.SelectDataset) ([]Book, error) {
	books := []Book{}
	if err := b.db.selectInto(ctx, b.db.db, &books, ds); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// OverrideAvailability sets the availability flag outside the ledger, e.g. to
// take a damaged copy out of circulation. Marking a copy available while an
// open borrow record references it is refused with ErrOpenBorrowExists, so
// the override can never make an out copy borrowable twice.
func (b *Books) OverrideAvailability(ctx context.Context, id int64, available bool) error {
	err := b.db.InTx(ctx, func(tx *sqlx.Tx) error {
		if available {
			open, err := count(ctx, tx,
				`SELECT COUNT(*) FROM borrows WHERE book_id=? AND return_date IS NULL`, id)
			if err != nil {
				return fmt.Errorf("count open borrows: %w", err)
			}
			if open > 0 {
				return ErrOpenBorrowExists
			}
		}
		n, err := execAffected(ctx, tx, `UPDATE books SET available=? WHERE book_id=?`, available, id)
		if err != nil {
			return fmt.Errorf("update availability: %w", err)
		}
		if n == 0 {
			return ErrBookNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.db.logger.Warn("availability overridden",
		slog.Int64(logAttrBookID, id), slog.Bool(logAttrAvailability, available))
	return nil
}

// Delete removes a copy that has never been borrowed. Copies with any borrow
// record, open or closed, are kept so history stays intact.
func (b *Books) Delete(ctx context.Context, id int64) error {
	return b.db.InTx(ctx, func(tx *sqlx.Tx) error {
		refs, err := count(ctx, tx, `SELECT COUNT(*) FROM borrows WHERE book_id=?`, id)
		if err != nil {
			return fmt.Errorf("count borrow records: %w", err)
		}
		if refs > 0 {
			return ErrBookHasHistory
		}
		n, err := execAffected(ctx, tx, `DELETE FROM books WHERE book_id=?`, id)
		if err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		if n == 0 {
			return ErrBookNotFound
		}
		return nil
	})
}
