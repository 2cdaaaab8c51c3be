// Package txn defines the unit of work that wraps one trigger firing's writes.
package txn

import (
	"context"
	"fmt"
	"log"
)

// Tx is an atomic scope: every write made through it commits together or not at all.
type Tx interface {
	Commit() error
	Rollback() error
}

// Beginner opens a new Tx.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run opens one Tx, runs fn inside it and commits. If fn returns an error or
// panics, the Tx is rolled back and the failure is returned as an error.
func Run(ctx context.Context, b Beginner, fn func(tx Tx) error) (err error) {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(tx)
			err = fmt.Errorf("panic in tx: %v", p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func rollback(tx Tx) {
	if err := tx.Rollback(); err != nil {
		log.Printf("[ERROR] rollback tx: %v", err)
	}
}
