package db

import (
	"context"
	"errors"

	"ride-dispatch/internal/dispatch/core/domain/model"
	"ride-dispatch/internal/dispatch/core/myerrors"

	"github.com/jackc/pgx/v5"
)

// UserRepo reads identity-owned rows. It doubles as the IIdentity adapter:
// both checks resolve against the same users table.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (ur *UserRepo) Get(ctx context.Context, userId string) (model.User, error) {
	q := `
	SELECT
		id, username, role, gender, is_public_gender, priority, star, active
	FROM
		users
	WHERE
		id = $1`

	var u model.User
	row := ur.db.GetConn().QueryRow(ctx, q, userId)
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.Gender, &u.IsPublicGender, &u.Priority, &u.Star, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, myerrors.E(myerrors.KindNotFound, "user not found")
		}
		return model.User{}, err
	}
	return u, nil
}

func (ur *UserRepo) IsActive(ctx context.Context, userId string) (bool, error) {
	u, err := ur.Get(ctx, userId)
	if err != nil {
		return false, err
	}
	return u.Active, nil
}

func (ur *UserRepo) HasRole(ctx context.Context, userId, role string) (bool, error) {
	u, err := ur.Get(ctx, userId)
	if err != nil {
		return false, err
	}
	return u.Role == role, nil
}
