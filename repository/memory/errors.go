package memory

import "errors"

var (
	errReadOnly     = errors.New("memory store: write inside a read-only unit")
	errDuplicateRef = errors.New("memory store: duplicate booking request reference")
)
