package library

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk representation of borrow and return dates.
const DateLayout = "2006-01-02"

// Date is a calendar day. It is stored as YYYY-MM-DD text.
type Date struct {
	time.Time
}

// NewDate returns the calendar day y-m-d in UTC.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day in local time.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) { return d.Format(DateLayout), nil }

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return d.parseInto(v)
	case []byte:
		return d.parseInto(string(v))
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) parseInto(s string) error {
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	return d.parseInto(strings.Trim(string(b), `"`))
}

// Book is one physical copy. Copies sharing title, author and year are
// still tracked independently.
type Book struct {
	ID        int64  `db:"book_id" json:"id"`
	Title     string `db:"title" json:"title"`
	Author    string `db:"author" json:"author"`
	Year      *int   `db:"year" json:"year,omitempty"`
	Available bool   `db:"available" json:"available"`
}

// NewBook holds the fields needed to register a copy.
type NewBook struct {
	Title  string
	Author string
	Year   *int
}

// Member represents a registered library member.
type Member struct {
	ID           int64   `db:"member_id" json:"id"`
	Name         string  `db:"name" json:"name"`
	Phone        *string `db:"phone" json:"phone,omitempty"`
	Email        *string `db:"email" json:"email,omitempty"`
	PasswordHash *string `db:"password_hash" json:"-"` // Don't serialize password hash
}

// HasPassword reports whether borrowing on behalf of the member requires a password.
func (m *Member) HasPassword() bool {
	return m.PasswordHash != nil && *m.PasswordHash != ""
}

// NewMember holds the fields needed to register a member. Blank phone and
// email are stored as absent.
type NewMember struct {
	Name  string
	Phone *string
	Email *string
}

// MemberUpdate lists the fields to change; nil fields are left untouched.
type MemberUpdate struct {
	Name  *string
	Phone *string
	Email *string
}

func (u MemberUpdate) empty() bool {
	return u.Name == nil && u.Phone == nil && u.Email == nil
}

// BorrowRecord links one copy to one member for a period. A nil ReturnDate
// means the record is open and the copy is out.
//
// MemberID is nil once the member has been deleted; the record is kept as
// anonymous history.
type BorrowRecord struct {
	ID         int64  `db:"borrow_id" json:"id"`
	BookID     int64  `db:"book_id" json:"book_id"`
	MemberID   *int64 `db:"member_id" json:"member_id,omitempty"`
	BorrowDate Date   `db:"borrow_date" json:"borrow_date"`
	ReturnDate *Date  `db:"return_date" json:"return_date,omitempty"`
}

// Open reports whether the copy is still out.
func (r BorrowRecord) Open() bool { return r.ReturnDate == nil }

// BorrowDetail is a borrow record joined with its copy and member. Queries
// fill only the columns relevant to them.
type BorrowDetail struct {
	BorrowID    int64   `db:"borrow_id" json:"borrow_id"`
	BorrowDate  Date    `db:"borrow_date" json:"borrow_date"`
	ReturnDate  *Date   `db:"return_date" json:"return_date,omitempty"`
	BookID      int64   `db:"book_id" json:"book_id"`
	Title       string  `db:"title" json:"title,omitempty"`
	Author      string  `db:"author" json:"author,omitempty"`
	Year        *int    `db:"year" json:"year,omitempty"`
	MemberID    *int64  `db:"member_id" json:"member_id,omitempty"`
	MemberName  *string `db:"name" json:"member_name,omitempty"`
	MemberPhone *string `db:"phone" json:"member_phone,omitempty"`
	MemberEmail *string `db:"email" json:"member_email,omitempty"`
}

// TitleCount is a borrow count aggregated over every copy of a title.
type TitleCount struct {
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	BorrowCount int64  `db:"borrow_count" json:"borrow_count"`
}

// MemberCount is the number of borrow records, open or closed, of a member.
type MemberCount struct {
	MemberID    int64  `db:"member_id" json:"member_id"`
	Name        string `db:"name" json:"name"`
	BorrowCount int64  `db:"borrow_count" json:"borrow_count"`
}

// AvailabilityMismatch is a copy whose availability flag disagrees with its
// open borrow records.
type AvailabilityMismatch struct {
	BookID      int64  `db:"book_id" json:"book_id"`
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	Available   bool   `db:"available" json:"available"`
	OpenBorrows int64  `db:"open_borrows" json:"open_borrows"`
}
