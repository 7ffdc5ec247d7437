// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package factorycfg builds the factory configuration partition read by the
// controller firmware at boot.
//
// The partition starts with a fixed 156-byte little-endian payload:
//
//	offset  size  field
//	0       4     magic "FCPF" (0x46504346)
//	4       2     version
//	6       2     flags
//	8       32    serial, NUL padded
//	40      64    password, NUL padded
//	104     48    reserved, zero
//	152     4     CRC-32 (IEEE) of bytes 0-151
//
// Every byte after the payload is 0xFF, the erased flash value.
package factorycfg

// Payload header values
const (
	Magic   = 0x46504346
	Version = 1
	// Flags is written as-is. The firmware does not interpret it.
	Flags = 0x0001
)

// Field sizes
const (
	HeaderSize   = 8
	SerialSize   = 32
	PasswordSize = 64
	ReservedSize = 48
	CRCSize      = 4
	PayloadSize  = HeaderSize + SerialSize + PasswordSize + ReservedSize + CRCSize
)

// Field offsets
const (
	offsetSerial   = HeaderSize
	offsetPassword = offsetSerial + SerialSize
	offsetReserved = offsetPassword + PasswordSize
	offsetCRC      = offsetReserved + ReservedSize
)

// Input limits
const (
	MaxSerialLen   = 28
	MinPasswordLen = 8
	MaxPasswordLen = 63
)

// Partition sizes
const (
	DefaultPartition = 0x10000
	MaxPartition     = 16 << 20
)

// ErasedByte fills the partition after the payload.
const ErasedByte byte = 0xFF
