package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateSnapshot = errors.New("history snapshot already exists for stock and date")
)

// User is a platform account. Robot accounts are traded by the dispatch loop.
type User struct {
	ID        int64
	Account   string
	IsRobot   bool
	CreatedAt time.Time
}

// Credentials is a plain-text account/password pair handed to the account store.
type Credentials struct {
	Account  string
	Password string
}

// Capital is a user's capital ledger balance.
type Capital struct {
	UserID    int64
	Balance   float64
	UpdatedAt time.Time
}
