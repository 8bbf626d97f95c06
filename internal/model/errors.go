package model

import "errors"

var (
	// ErrNotFound is returned when the referenced task or sandbox does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a resource that is already stored.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when an input or a requested transition is not valid.
	ErrNotValid = errors.New("not valid")
)
