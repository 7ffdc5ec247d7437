// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package factorycfg

import "hash/crc32"

// CalculateCRC computes the IEEE CRC-32 the firmware checks, the same
// polynomial as zlib and esp_rom_crc32_le.
func CalculateCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
