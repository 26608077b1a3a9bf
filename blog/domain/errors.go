package domain

import "errors"

var (
	ErrPostNotFound = errors.New("post not found")
	ErrIDChanged    = errors.New("post file no longer carries the expected id")
)
