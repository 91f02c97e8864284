package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-identity-gate/internal/model"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, display_name, role, auth_provider,
		        COALESCE(external_id, ''), created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.UserRecord, error) {
	return r.findOne(ctx, "find user by id",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.UserRecord, error) {
	return r.findOne(ctx, "find user by email",
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error) {
	if externalID == "" {
		return model.UserRecord{}, model.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by external id",
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

func (r *UserRepository) Create(ctx context.Context, u model.UserRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, role, auth_provider, external_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, string(u.Role), string(u.AuthProvider), u.ExternalID, u.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u model.UserRecord) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		    SET display_name = $2,
		        role = $3,
		        external_id = NULLIF($4, ''),
		        password_hash = COALESCE(NULLIF($5, ''), password_hash),
		        updated_at = now()
		  WHERE id = $1`,
		u.ID, u.DisplayName, string(u.Role), u.ExternalID, u.PasswordHash)
	if isUniqueViolation(err) {
		return model.ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.UserRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserRecord, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) findOne(ctx context.Context, op string, query string, arg string) (model.UserRecord, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserRecord{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (model.UserRecord, error) {
	var (
		u        model.UserRecord
		role     string
		provider string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &role, &provider, &u.ExternalID, &u.CreatedAt)
	u.Role = model.Role(role)
	u.AuthProvider = model.AuthProvider(provider)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
