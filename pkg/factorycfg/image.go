// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package factorycfg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Embed returns a partitionSize buffer of ErasedByte with payload at offset 0.
func Embed(payload []byte, partitionSize int) ([]byte, error) {
	if partitionSize <= 0 {
		return nil, errors.New("Partition size must be positive.")
	}
	if len(payload) > partitionSize {
		return nil, &SizeError{Payload: len(payload), Partition: partitionSize}
	}
	image := bytes.Repeat([]byte{ErasedByte}, partitionSize)
	copy(image, payload)
	return image, nil
}

// Build encodes serial and password and embeds the result in a partition.
func Build(serial, password string, partitionSize int) ([]byte, error) {
	payload, err := Encode(serial, password)
	if err != nil {
		return nil, err
	}
	return Embed(payload, partitionSize)
}

// WriteImage writes image to path, creating parent directories.
func WriteImage(path string, image []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ParseSize parses a partition size written in decimal, hex (0x), octal (0o)
// or binary (0b).
func ParseSize(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid partition size: %s", s)
	}
	if n <= 0 {
		return 0, errors.New("Partition size must be positive.")
	}
	if n > MaxPartition {
		return 0, fmt.Errorf("Partition size %d exceeds the %d byte limit.", n, MaxPartition)
	}
	return int(n), nil
}
