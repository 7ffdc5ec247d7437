// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package factorycfg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Payload is a decoded factory configuration.
type Payload struct {
	Version  uint16
	Flags    uint16
	Serial   string
	Password string
	CRC      uint32
}

// SanitizeSerial keeps ASCII letters, digits, '_' and '-' and truncates the
// result to MaxSerialLen.
func SanitizeSerial(raw string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(raw) && b.Len() < MaxSerialLen; i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", &FieldError{Field: "serial", Message: "Serial suffix must contain at least one valid character (alphanumeric/_/-)."}
	}
	return b.String(), nil
}

// ValidatePassword checks length and that every byte is printable ASCII.
func ValidatePassword(raw string) (string, error) {
	if n := len(raw); n < MinPasswordLen || n > MaxPasswordLen {
		return "", &FieldError{
			Field:   "password",
			Message: fmt.Sprintf("Password must be between %d and %d characters.", MinPasswordLen, MaxPasswordLen),
		}
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x20 || raw[i] > 0x7E {
			return "", &FieldError{Field: "password", Message: "Password must contain printable ASCII characters only."}
		}
	}
	return raw, nil
}

// Encode sanitizes serial, validates password and returns the payload bytes.
// Output depends only on the inputs.
func Encode(serial, password string) ([]byte, error) {
	serial, err := SanitizeSerial(serial)
	if err != nil {
		return nil, err
	}
	password, err = ValidatePassword(password)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint16(buf[6:8], Flags)
	copy(buf[offsetSerial:offsetSerial+SerialSize], serial)
	copy(buf[offsetPassword:offsetPassword+PasswordSize], password)
	// reserved stays zero

	binary.LittleEndian.PutUint32(buf[offsetCRC:], CalculateCRC(buf[:offsetCRC]))
	return buf, nil
}

// Decode parses the payload at the start of data and verifies magic and CRC.
// Trailing bytes such as partition padding are ignored.
func Decode(data []byte) (*Payload, error) {
	if len(data) < PayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortPayload, len(data), PayloadSize)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	stored := binary.LittleEndian.Uint32(data[offsetCRC : offsetCRC+CRCSize])
	if calculated := CalculateCRC(data[:offsetCRC]); calculated != stored {
		return nil, &ChecksumError{Stored: stored, Calculated: calculated}
	}

	return &Payload{
		Version:  binary.LittleEndian.Uint16(data[4:6]),
		Flags:    binary.LittleEndian.Uint16(data[6:8]),
		Serial:   cString(data[offsetSerial : offsetSerial+SerialSize]),
		Password: cString(data[offsetPassword : offsetPassword+PasswordSize]),
		CRC:      stored,
	}, nil
}

func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
