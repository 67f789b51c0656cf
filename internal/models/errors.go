package models

import "errors"

var (
	// ErrDuplicateIdentity is returned when an employee code is already enrolled.
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrNotFound          = errors.New("not found")
)
