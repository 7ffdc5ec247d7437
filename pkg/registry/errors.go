// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("password entry not found")

// NotFoundError is a lookup miss for a (batch, serial) pair.
type NotFoundError struct {
	Batch  int
	Serial int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No password entry for batch %d serial %04d.", e.Batch, e.Serial)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// LoadError is a fatal problem with the password table.
type LoadError struct {
	Source  string
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Source, e.Line, e.Message)
	}
	return e.Message
}
