// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package factorycfg

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrInvalidField      = errors.New("invalid field")
	ErrPartitionTooSmall = errors.New("payload larger than partition")
	ErrShortPayload      = errors.New("data shorter than payload")
	ErrBadMagic          = errors.New("bad payload magic")
	ErrChecksum          = errors.New("payload checksum mismatch")
)

// FieldError reports an unusable serial or password.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidField
}

// ChecksumError carries both CRC values of a corrupt payload.
type ChecksumError struct {
	Stored     uint32
	Calculated uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("CRC mismatch: stored 0x%08X, calculated 0x%08X", e.Stored, e.Calculated)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}

// SizeError means the payload does not fit in the partition.
type SizeError struct {
	Payload   int
	Partition int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("Payload (%d bytes) does not fit in partition (%d bytes). Increase the partition size.",
		e.Payload, e.Partition)
}

func (e *SizeError) Unwrap() error {
	return ErrPartitionTooSmall
}
