package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

// FindCapital returns a user's ledger or model.ErrNotFound when the user has none.
func (s *Store) FindCapital(ctx context.Context, tx txn.Tx, userID int64) (model.Capital, error) {
	q, err := s.conn(tx)
	if err != nil {
		return model.Capital{}, err
	}
	var (
		c       model.Capital
		updated int64
	)
	err = q.QueryRowContext(ctx, `SELECT user_id, balance, updated_at FROM user_capital WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.Balance, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Capital{}, fmt.Errorf("capital of user %d: %w", userID, model.ErrNotFound)
	}
	if err != nil {
		return model.Capital{}, fmt.Errorf("get capital of user %d: %w", userID, err)
	}
	c.UpdatedAt = time.Unix(updated, 0)
	return c, nil
}

// InitCapital creates a zero-balance ledger for a user.
func (s *Store) InitCapital(ctx context.Context, tx txn.Tx, userID int64) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO user_capital (user_id, balance, updated_at) VALUES (?, 0, ?)`,
		userID, s.stamp()); err != nil {
		return fmt.Errorf("init capital of user %d: %w", userID, err)
	}
	return nil
}

// CreditCapital adds amount to an existing ledger. Missing ledgers are not created.
func (s *Store) CreditCapital(ctx context.Context, tx txn.Tx, userID int64, amount float64) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE user_capital SET balance = balance + ?, updated_at = ? WHERE user_id = ?`,
		amount, s.stamp(), userID)
	if err != nil {
		return fmt.Errorf("credit capital of user %d: %w", userID, err)
	}
	return mustAffect(res, fmt.Sprintf("credit capital of user %d", userID))
}
