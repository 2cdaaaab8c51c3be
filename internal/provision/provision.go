// Package provision creates robot accounts and grants the periodic capital allowance.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"

	"github.com/google/uuid"
)

// AccountStore registers robot accounts.
type AccountStore interface {
	CreateRobot(ctx context.Context, tx txn.Tx, cred model.Credentials) (model.User, error)
	ListUsers(ctx context.Context, tx txn.Tx) ([]model.User, error)
}

// CapitalStore is the capital ledger collaborator.
type CapitalStore interface {
	FindCapital(ctx context.Context, tx txn.Tx, userID int64) (model.Capital, error)
	InitCapital(ctx context.Context, tx txn.Tx, userID int64) error
	CreditCapital(ctx context.Context, tx txn.Tx, userID int64, amount float64) error
}

// Provisioner owns the two provisioning jobs.
type Provisioner struct {
	tx        txn.Beginner
	accounts  AccountStore
	capital   CapitalStore
	allowance float64
	newCred   func() model.Credentials
}

// NewProvisioner creates a Provisioner granting allowance per grant firing.
func NewProvisioner(tx txn.Beginner, accounts AccountStore, capital CapitalStore, allowance float64) *Provisioner {
	return &Provisioner{
		tx:        tx,
		accounts:  accounts,
		capital:   capital,
		allowance: allowance,
		newCred:   RobotCredentials,
	}
}

// RobotCredentials generates a fresh robot_<uuid> account with a random uuid password.
func RobotCredentials() model.Credentials {
	return model.Credentials{
		Account:  "robot_" + uuid.NewString(),
		Password: uuid.NewString(),
	}
}

// CreateRobot registers one robot account and gives it an empty ledger.
func (p *Provisioner) CreateRobot(ctx context.Context) (model.User, error) {
	var robot model.User
	err := txn.Run(ctx, p.tx, func(tx txn.Tx) error {
		u, err := p.accounts.CreateRobot(ctx, tx, p.newCred())
		if err != nil {
			return fmt.Errorf("register robot: %w", err)
		}
		if err := p.capital.InitCapital(ctx, tx, u.ID); err != nil {
			return fmt.Errorf("init capital of robot %d: %w", u.ID, err)
		}
		robot = u
		return nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("create robot rolled back: %w", err)
	}
	return robot, nil
}

// GrantCapital credits the allowance to every user holding a ledger. Users
// without one are skipped. Returns the number of ledgers credited.
func (p *Provisioner) GrantCapital(ctx context.Context) (int, error) {
	var granted int
	err := txn.Run(ctx, p.tx, func(tx txn.Tx) error {
		users, err := p.accounts.ListUsers(ctx, tx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, u := range users {
			if _, err := p.capital.FindCapital(ctx, tx, u.ID); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				return fmt.Errorf("find capital of user %d: %w", u.ID, err)
			}
			if err := p.capital.CreditCapital(ctx, tx, u.ID, p.allowance); err != nil {
				return fmt.Errorf("credit user %d: %w", u.ID, err)
			}
			granted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("grant capital rolled back: %w", err)
	}
	return granted, nil
}

// CreateRobotHandler adapts CreateRobot to a scheduler handler.
func (p *Provisioner) CreateRobotHandler(ctx context.Context) error {
	u, err := p.CreateRobot(ctx)
	if err != nil {
		return err
	}
	log.Printf("[INFO] robot %d created: %s", u.ID, u.Account)
	return nil
}

// GrantCapitalHandler adapts GrantCapital to a scheduler handler.
func (p *Provisioner) GrantCapitalHandler(ctx context.Context) error {
	n, err := p.GrantCapital(ctx)
	if err != nil {
		return err
	}
	log.Printf("[INFO] capital granted: %.0f to %d users", p.allowance, n)
	return nil
}
