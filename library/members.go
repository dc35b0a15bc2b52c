package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// passwordCost is the bcrypt cost for member passwords.
var passwordCost = bcrypt.DefaultCost

// Members is the member registry.
type Members struct {
	db *Database
}

// NewMembers returns a registry backed by db.
func NewMembers(db *Database) *Members {
	return &Members{db: db}
}

var memberColumns = []any{"member_id", "name", "phone", "email", "password_hash"}

// Add registers a member. Blank phone and email are stored as absent; an
// email already used by another member is rejected with ErrEmailTaken.
func (m *Members) Add(ctx context.Context, nm NewMember) (int64, error) {
	name := strings.TrimSpace(nm.Name)
	if name == "" {
		return 0, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	res, err := m.db.addMemberStmt.ExecContext(ctx, name, nullIfBlank(nm.Phone), nullIfBlank(nm.Email))
	if isUniqueViolation(err) {
		return 0, ErrEmailTaken
	}
	if err != nil {
		return 0, fmt.Errorf("add member: %w", err)
	}
	return res.LastInsertId()
}

// Get returns one member, or ErrMemberNotFound.
func (m *Members) Get(ctx context.Context, id int64) (*Member, error) {
	return m.getOne(ctx, goqu.C("member_id").Eq(id))
}

// FindByPhone returns the member with exactly this phone number.
func (m *Members) FindByPhone(ctx context.Context, phone string) (*Member, error) {
	return m.getOne(ctx, goqu.C("phone").Eq(phone))
}

// FindByEmail returns the member with exactly this email.
func (m *Members) FindByEmail(ctx context.Context, email string) (*Member, error) {
	return m.getOne(ctx, goqu.C("email").Eq(email))
}

func (m *Members) getOne(ctx context.Context, where exp.Expression) (*Member, error) {
	var found []Member
	ds := m.db.dialect.From("members").Select(memberColumns...).
		Where(where).Order(goqu.C("member_id").Asc()).Limit(1)
	if err := m.db.selectInto(ctx, m.db.db, &found, ds); err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrMemberNotFound
	}
	return &found[0], nil
}

// List returns every member ordered by name.
func (m *Members) List(ctx context.Context) ([]Member, error) {
	members := []Member{}
	ds := m.db.dialect.From("members").Select(memberColumns...).
		Order(goqu.C("name").Asc(), goqu.C("member_id").Asc())
	if err := m.db.selectInto(ctx, m.db.db, &members, ds); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Update changes the non-nil fields of u. It returns false when there is
// nothing to change or the member does not exist.
func (m *Members) Update(ctx context.Context, id int64, u MemberUpdate) (bool, error) {
	if u.empty() {
		return false, nil
	}
	rec := goqu.Record{}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return false, fmt.Errorf("name cannot be blank: %w", ErrInvalidInput)
		}
		rec["name"] = name
	}
	if u.Phone != nil {
		rec["phone"] = nullIfBlank(u.Phone)
	}
	if u.Email != nil {
		rec["email"] = nullIfBlank(u.Email)
	}

	query, args, err := m.db.dialect.Update("members").Prepared(true).
		Set(rec).Where(goqu.C("member_id").Eq(id)).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build member update: %w", err)
	}
	n, err := execAffected(ctx, m.db.db, query, args...)
	if isUniqueViolation(err) {
		return false, ErrEmailTaken
	}
	if err != nil {
		return false, fmt.Errorf("update member: %w", err)
	}
	return n > 0, nil
}

// Delete removes a member with no open borrows. Their closed records stay
// in the ledger with the member reference cleared.
func (m *Members) Delete(ctx context.Context, id int64) error {
	return m.db.InTx(ctx, func(tx *sqlx.Tx) error {
		open, err := count(ctx, tx,
			`SELECT COUNT(*) FROM borrows WHERE member_id=? AND return_date IS NULL`, id)
		if err != nil {
			return fmt.Errorf("count open borrows: %w", err)
		}
		if open > 0 {
			return ErrMemberHasOpenBorrows
		}
		n, err := execAffected(ctx, tx, `DELETE FROM members WHERE member_id=?`, id)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if n == 0 {
			return ErrMemberNotFound
		}
		return nil
	})
}

// CountBorrows counts the member's borrow records, only open ones when
// activeOnly is set.
func (m *Members) CountBorrows(ctx context.Context, id int64, activeOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM borrows WHERE member_id=?`
	if activeOnly {
		query += ` AND return_date IS NULL`
	}
	n, err := count(ctx, m.db.db, query, id)
	if err != nil {
		return 0, fmt.Errorf("count borrows: %w", err)
	}
	return n, nil
}

// SetPassword stores a bcrypt hash of password for the member.
func (m *Members) SetPassword(ctx context.Context, id int64, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty: %w", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	n, err := execAffected(ctx, m.db.db,
		`UPDATE members SET password_hash=? WHERE member_id=?`, string(hash), id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Authenticate checks password against the member's stored hash. Members
// without a password are accepted as is.
func (m *Members) Authenticate(ctx context.Context, id int64, password string) error {
	member, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !member.HasPassword() {
		return nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(*member.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

func memberExists(ctx context.Context, q sqlx.QueryerContext, id int64) (bool, error) {
	found, err := exists(ctx, q, `SELECT EXISTS(SELECT 1 FROM members WHERE member_id=?)`, id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check member %d: %w", id, err)
	}
	return found, nil
}
