// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registry holds the factory password table: one SoftAP password per
// (batch, serial) pair, loaded once from a CSV file at startup and read-only
// afterwards.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Thermoquad/provisioner/pkg/identity"
)

// Password length limits (WPA2 passphrase)
const (
	PasswordMinLen = 8
	PasswordMaxLen = 63
)

// Required CSV header columns
var requiredColumns = []string{"batch", "serial", "password"}

// Entry is one row of the password table.
type Entry struct {
	Batch    int
	Serial   int
	Password string
}

type key struct {
	batch  int
	serial int
}

// Registry maps (batch, serial) to a password. Safe for concurrent reads.
type Registry struct {
	source  string
	entries map[key]string
}

// New builds a registry from entries, applying the same checks as Parse.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{source: "memory", entries: make(map[key]string, len(entries))}
	for _, e := range entries {
		if err := r.add(e, 0); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Load reads the password table from a CSV file.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{
				Source:  path,
				Message: fmt.Sprintf("Password database not found at %s. Create passwords.csv (batch,serial,password).", path),
			}
		}
		return nil, &LoadError{Source: path, Message: err.Error()}
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse reads a CSV table with a header row containing batch, serial and
// password columns. Extra columns are ignored.
func Parse(rd io.Reader, source string) (*Registry, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &LoadError{Source: source, Message: "Password CSV must contain batch,serial,password columns."}
		}
		return nil, &LoadError{Source: source, Message: err.Error()}
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		columns[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, &LoadError{Source: source, Message: "Password CSV must contain batch,serial,password columns."}
		}
	}

	r := &Registry{source: source, entries: make(map[key]string)}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: source, Message: err.Error()}
		}
		line, _ := cr.FieldPos(0)

		field := func(name string) string {
			i := columns[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		batch, errB := strconv.Atoi(field("batch"))
		serial, errS := strconv.Atoi(field("serial"))
		if errB != nil || errS != nil {
			return nil, &LoadError{
				Source:  source,
				Line:    line,
				Message: fmt.Sprintf("Invalid batch/serial value in %s: %v", source, record),
			}
		}

		if err := r.add(Entry{Batch: batch, Serial: serial, Password: field("password")}, line); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) add(e Entry, line int) error {
	if e.Serial < identity.SerialMin || e.Serial > identity.SerialMax {
		return &LoadError{
			Source:  r.source,
			Line:    line,
			Message: fmt.Sprintf("Serial %d out of supported range %d-%d.", e.Serial, identity.SerialMin, identity.SerialMax),
		}
	}
	if n := len(e.Password); n < PasswordMinLen || n > PasswordMaxLen {
		return &LoadError{
			Source:  r.source,
			Line:    line,
			Message: fmt.Sprintf("Password for batch %d serial %d violates length constraints.", e.Batch, e.Serial),
		}
	}
	k := key{e.Batch, e.Serial}
	if _, dup := r.entries[k]; dup {
		return &LoadError{
			Source:  r.source,
			Line:    line,
			Message: fmt.Sprintf("Duplicate password entry for batch %d serial %04d.", e.Batch, e.Serial),
		}
	}
	r.entries[k] = e.Password
	return nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Source returns the path the registry was loaded from.
func (r *Registry) Source() string {
	return r.source
}

// Lookup returns the password for (batch, serial). A missing entry yields a
// *NotFoundError matching ErrNotFound.
func (r *Registry) Lookup(batch, serial int) (string, error) {
	password, ok := r.entries[key{batch, serial}]
	if !ok {
		return "", &NotFoundError{Batch: batch, Serial: serial}
	}
	return password, nil
}

// Resolve validates req with f, looks up the password and returns the full
// identity. Validation errors are reported before lookup misses.
func (r *Registry) Resolve(f *identity.Formatter, req identity.Request) (identity.DeviceIdentity, error) {
	if err := f.Validate(req); err != nil {
		return identity.DeviceIdentity{}, err
	}
	password, err := r.Lookup(req.Batch, req.Serial)
	if err != nil {
		return identity.DeviceIdentity{}, err
	}
	return f.Identity(req, password)
}
