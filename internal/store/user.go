package store

import (
	"context"
	"fmt"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"

	"golang.org/x/crypto/bcrypt"
)

// CreateRobot registers a robot account. The password is stored as a bcrypt hash.
func (s *Store) CreateRobot(ctx context.Context, tx txn.Tx, cred model.Credentials) (model.User, error) {
	return s.createUser(ctx, tx, cred, true)
}

// CreateUser registers a human account.
func (s *Store) CreateUser(ctx context.Context, tx txn.Tx, cred model.Credentials) (model.User, error) {
	return s.createUser(ctx, tx, cred, false)
}

func (s *Store) createUser(ctx context.Context, tx txn.Tx, cred model.Credentials, robot bool) (model.User, error) {
	q, err := s.conn(tx)
	if err != nil {
		return model.User{}, err
	}
	if cred.Account == "" || cred.Password == "" {
		return model.User{}, fmt.Errorf("account and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cred.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	res, err := q.ExecContext(ctx, `INSERT INTO users (account, password_hash, is_robot, created_at) VALUES (?,?,?,?)`,
		cred.Account, string(hash), robot, now.Unix())
	if err != nil {
		return model.User{}, fmt.Errorf("insert user %s: %w", cred.Account, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Account: cred.Account, IsRobot: robot, CreatedAt: time.Unix(now.Unix(), 0)}, nil
}

// ListUsers returns every account, robots included.
func (s *Store) ListUsers(ctx context.Context, tx txn.Tx) ([]model.User, error) {
	return s.listUsers(ctx, tx, `SELECT id, account, is_robot, created_at FROM users ORDER BY id`)
}

// ListRobots returns every robot account. It reads outside any Tx.
func (s *Store) ListRobots(ctx context.Context) ([]model.User, error) {
	return s.listUsers(ctx, nil, `SELECT id, account, is_robot, created_at FROM users WHERE is_robot = 1 ORDER BY id`)
}

func (s *Store) listUsers(ctx context.Context, tx txn.Tx, query string) ([]model.User, error) {
	q, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u       model.User
			created int64
		)
		if err := rows.Scan(&u.ID, &u.Account, &u.IsRobot, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = time.Unix(created, 0)
		users = append(users, u)
	}
	return users, rows.Err()
}
