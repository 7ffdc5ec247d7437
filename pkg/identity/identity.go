// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package identity derives the factory identity of a controller from its
// batch, build date and inter-batch serial number.
//
// The identifier doubles as the serial suffix written to the factory
// partition and, depending on the product variant, as the SoftAP SSID.
package identity

import (
	"fmt"
	"strings"
)

// Input ranges
const (
	SerialMin = 1
	SerialMax = 100
	YearMin   = 0
	YearMax   = 99
	MonthMin  = 1
	MonthMax  = 12
)

// DefaultPrefix is prepended to every identifier.
const DefaultPrefix = "CC"

// Variant selects which inputs the identifier is built from.
type Variant int

const (
	// DateStamped identifiers embed the build year and month: CC01-25070001.
	DateStamped Variant = iota
	// Simple identifiers carry only batch and serial: CC01-0001.
	Simple
)

func (v Variant) String() string {
	switch v {
	case DateStamped:
		return "date"
	case Simple:
		return "simple"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts the names produced by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date", "dated", "date-stamped":
		return DateStamped, nil
	case "simple", "plain":
		return Simple, nil
	}
	return 0, fmt.Errorf("unknown product variant %q (use \"date\" or \"simple\")", s)
}

// Request is the operator input for one unit.
type Request struct {
	Batch   int
	Serial  int
	Year    int
	Month   int
	HasDate bool
}

// Identifier is the formatted output of a Formatter.
type Identifier struct {
	Serial string
	SSID   string
}

// DeviceIdentity is everything needed to flash one unit. It is built per
// lookup and never stored.
type DeviceIdentity struct {
	Batch        int
	Year         int
	Month        int
	HasDate      bool
	SerialNumber int
	Serial       string
	SSID         string
	Password     string
}

// Summary is the first line of a flash log.
func (d DeviceIdentity) Summary() string {
	if d.HasDate {
		return fmt.Sprintf("Starting flash for batch %02d serial %04d (%02d/%02d)",
			d.Batch, d.SerialNumber, d.Year, d.Month)
	}
	return fmt.Sprintf("Starting flash for batch %02d serial %04d", d.Batch, d.SerialNumber)
}

// Formatter turns a Request into an Identifier for one product variant.
type Formatter struct {
	Variant    Variant
	Prefix     string
	SSIDPrefix string
}

// NewFormatter returns a formatter using DefaultPrefix.
func NewFormatter(v Variant) *Formatter {
	return &Formatter{Variant: v, Prefix: DefaultPrefix}
}

// Validate checks the request against the ranges for the formatter's variant.
// Checks run in the order batch, serial, year, month so the first reported
// problem matches what the operator typed first.
func (f *Formatter) Validate(req Request) error {
	if req.Batch <= 0 {
		return &ValidationError{Field: "batch", Message: "Batch number must be positive."}
	}
	if req.Serial < SerialMin || req.Serial > SerialMax {
		return &ValidationError{
			Field:   "serial",
			Message: fmt.Sprintf("Serial must be between %d and %d.", SerialMin, SerialMax),
		}
	}
	if f.Variant != DateStamped {
		return nil
	}
	if !req.HasDate {
		return &ValidationError{Field: "year", Message: "Year and month are required."}
	}
	if req.Year < YearMin || req.Year > YearMax {
		return &ValidationError{
			Field:   "year",
			Message: fmt.Sprintf("Year must be between %02d and %02d.", YearMin, YearMax),
		}
	}
	if req.Month < MonthMin || req.Month > MonthMax {
		return &ValidationError{
			Field:   "month",
			Message: fmt.Sprintf("Month must be between %02d and %02d.", MonthMin, MonthMax),
		}
	}
	return nil
}

// Format validates req and builds the identifier and SSID.
func (f *Formatter) Format(req Request) (Identifier, error) {
	if err := f.Validate(req); err != nil {
		return Identifier{}, err
	}

	var serial string
	switch f.Variant {
	case DateStamped:
		serial = fmt.Sprintf("%s%02d-%02d%02d%04d", f.Prefix, req.Batch, req.Year, req.Month, req.Serial)
	default:
		serial = fmt.Sprintf("%s%02d-%04d", f.Prefix, req.Batch, req.Serial)
	}

	return Identifier{Serial: serial, SSID: f.SSIDPrefix + serial}, nil
}

// Identity combines a formatted identifier with the unit's password.
func (f *Formatter) Identity(req Request, password string) (DeviceIdentity, error) {
	id, err := f.Format(req)
	if err != nil {
		return DeviceIdentity{}, err
	}
	d := DeviceIdentity{
		Batch:        req.Batch,
		SerialNumber: req.Serial,
		Serial:       id.Serial,
		SSID:         id.SSID,
		Password:     password,
	}
	if f.Variant == DateStamped {
		d.Year, d.Month, d.HasDate = req.Year, req.Month, true
	}
	return d, nil
}
