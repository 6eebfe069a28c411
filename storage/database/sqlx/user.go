package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/user"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{
	"id", "name", "username", "email", "is_active", "roles",
	"leader_id", "password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	LeaderID     null.Int       `db:"leader_id"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    time.Time      `db:"last_login"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		LeaderID:     r.LeaderID,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin,
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapUserNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	qb := psql.Select("username", "email").
		From("users").
		Where(sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}})
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.Limit(1).ToSql()
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var taken userRow
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&taken.Username, &taken.Email); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if taken.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query, args, err := psql.Insert("users").
		Columns("name", "username", "email", "is_active", "roles", "leader_id",
			"password_hash", "created_at", "updated_at", "last_login").
		Values(usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles),
			usr.LeaderID, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user insert")
	}
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getUserBy(ctx context.Context, pred interface{}, args ...interface{}) (user.User, error) {
	query, qargs, err := psql.Select(userColumns...).
		From("users").
		Where(pred, args...).
		Limit(1).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}

	rows, err := repo.exec.QueryContext(ctx, query, qargs...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "querying user")
	}

	var found []userRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return user.User{}, errors.Wrap(err, "scanning user")
	}
	if len(found) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return found[0].toUser(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.getUserBy(ctx, sq.Eq{"id": id})
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUserBy(ctx, sq.Eq{"username": username})
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUserBy(ctx, sq.Eq{"email": email})
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUserBy(ctx, sq.Or{sq.Eq{"username": username}, sq.Eq{"email": username}})
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("users")

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			qb = qb.Where(sq.Or{
				sq.Expr("name ILIKE ?", val),
				sq.Expr("username ILIKE ?", val),
				sq.Expr("email ILIKE ?", val),
			})
		}
		if len(filter.Roles) > 0 {
			qb = qb.Where("roles && ?", pq.StringArray(filter.Roles))
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo})
		}
	}

	for _, ord := range core.DefaultOrdering(ordering, "created_at") {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	var found []userRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return nil, errors.Wrap(err, "scanning users")
	}
	users := make([]user.User, 0, len(found))
	for _, r := range found {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	qb := psql.Update("users").
		Set("updated_at", usr.UpdatedAt).
		Where(sq.Eq{"id": usr.ID})

	if usr.Name != "" {
		qb = qb.Set("name", usr.Name)
	}
	if usr.Username != "" {
		qb = qb.Set("username", usr.Username)
	}
	if usr.Email != "" {
		qb = qb.Set("email", usr.Email)
	}
	if len(usr.Roles) > 0 {
		qb = qb.Set("roles", pq.StringArray(usr.Roles))
	}
	if usr.LeaderID.Valid {
		qb = qb.Set("leader_id", usr.LeaderID)
	}
	if len(usr.PasswordHash) > 0 {
		qb = qb.Set("password_hash", usr.PasswordHash)
	}
	if isActive != nil {
		qb = qb.Set("is_active", *isActive)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	existing, err := repo.GetUserByUsernameOrEmail(ctx, usr.Username)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return repo.CreateUser(ctx, usr)
		}
		return user.User{}, err
	}
	usr.ID = existing.ID
	return repo.UpdateUser(ctx, usr, nil)
}

func (repo userRepository) SetLastLogin(ctx context.Context, id int, t time.Time) error {
	query, args, err := psql.Update("users").
		Set("last_login", t).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building last login update")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "setting last login")
	}
	return nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	query, args, err := psql.Delete("users").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building users delete")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo userRepository) CreateNote(ctx context.Context, note user.Note) (user.Note, error) {
	query, args, err := psql.Insert("user_notes").
		Columns("user_id", "body", "created_at").
		Values(note.UserID, note.Body, note.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return user.Note{}, errors.Wrap(err, "building note insert")
	}
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&note.ID); err != nil {
		return user.Note{}, errors.Wrap(err, "inserting note")
	}
	return note, nil
}

func (repo userRepository) QueryNotes(ctx context.Context, userID int) ([]user.Note, error) {
	query, args, err := psql.Select("id", "user_id", "body", "created_at").
		From("user_notes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building notes query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}

	type noteRow struct {
		ID        int       `db:"id"`
		UserID    int       `db:"user_id"`
		Body      string    `db:"body"`
		CreatedAt time.Time `db:"created_at"`
	}
	var found []noteRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return nil, errors.Wrap(err, "scanning notes")
	}
	notes := make([]user.Note, 0, len(found))
	for _, r := range found {
		notes = append(notes, user.Note{ID: r.ID, UserID: r.UserID, Body: r.Body, CreatedAt: r.CreatedAt})
	}
	return notes, nil
}
