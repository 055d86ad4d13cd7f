package store

import "errors"

var (
	// ErrFileNotFound indicates no record exists for the object key.
	ErrFileNotFound = errors.New("file not found")

	// ErrDuplicateObjectKey indicates the object key was already recorded.
	ErrDuplicateObjectKey = errors.New("object key already recorded")
)
