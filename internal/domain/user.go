// Package domain contains entities without behaviour, just meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (*User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), DisplayName: name}, nil
}

func (u *User) SetDisplayName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	u.DisplayName = name
	return nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}
