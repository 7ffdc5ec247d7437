// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/provisioner/pkg/identity"
)

func TestParse_Valid(t *testing.T) {
	data := "batch,serial,password\n1,1,abcdefgh\n1,2,ijklmnop\n2, 1 ,  qrstuvwx  \n"
	r, err := Parse(strings.NewReader(data), "passwords.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}

	tests := []struct {
		batch, serial int
		want          string
	}{
		{1, 1, "abcdefgh"},
		{1, 2, "ijklmnop"},
		{2, 1, "qrstuvwx"},
	}
	for _, tt := range tests {
		got, err := r.Lookup(tt.batch, tt.serial)
		if err != nil {
			t.Errorf("Lookup(%d, %d) failed: %v", tt.batch, tt.serial, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Lookup(%d, %d) = %q, want %q", tt.batch, tt.serial, got, tt.want)
		}
	}
}

func TestParse_ColumnOrderAndExtras(t *testing.T) {
	data := "\ufeffpassword,note,serial,batch\nabcdefgh,spare,5,3\n"
	r, err := Parse(strings.NewReader(data), "passwords.csv")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got, err := r.Lookup(3, 5); err != nil || got != "abcdefgh" {
		t.Errorf("Lookup(3, 5) = %q, %v", got, err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		message string
	}{
		{"empty file", "", "Password CSV must contain batch,serial,password columns."},
		{"missing column", "batch,serial\n1,1\n", "Password CSV must contain batch,serial,password columns."},
		{"bad batch", "batch,serial,password\nx,1,abcdefgh\n", "Invalid batch/serial value"},
		{"bad serial", "batch,serial,password\n1,,abcdefgh\n", "Invalid batch/serial value"},
		{"serial zero", "batch,serial,password\n1,0,abcdefgh\n", "Serial 0 out of supported range 1-100."},
		{"serial high", "batch,serial,password\n1,101,abcdefgh\n", "Serial 101 out of supported range 1-100."},
		{"short password", "batch,serial,password\n1,1,short\n", "Password for batch 1 serial 1 violates length constraints."},
		{"long password", "batch,serial,password\n1,1," + strings.Repeat("a", 64) + "\n", "violates length constraints"},
		{"duplicate", "batch,serial,password\n1,1,abcdefgh\n1,1,ijklmnop\n", "Duplicate password entry for batch 1 serial 0001."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), "passwords.csv")
			if err == nil {
				t.Fatal("expected error")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error %T is not *LoadError", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q should contain %q", err.Error(), tt.message)
			}
		})
	}
}

func TestParse_ErrorLine(t *testing.T) {
	data := "batch,serial,password\n1,1,abcdefgh\n1,1,ijklmnop\n"
	_, err := Parse(strings.NewReader(data), "passwords.csv")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.Line != 3 {
		t.Errorf("Line = %d, want 3", le.Line)
	}
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwords.csv")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "Password database not found at "+path) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwords.csv")
	if err := os.WriteFile(path, []byte("batch,serial,password\n1,1,abcdefgh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Source() != path {
		t.Errorf("Source = %q, want %q", r.Source(), path)
	}
}

func TestLookup_NotFound(t *testing.T) {
	r, err := New([]Entry{{Batch: 1, Serial: 1, Password: "abcdefgh"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, k := range [][2]int{{1, 2}, {2, 1}, {0, 0}, {-1, 1000}} {
		_, err := r.Lookup(k[0], k[1])
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup(%d, %d) error = %v, want ErrNotFound", k[0], k[1], err)
		}
		if errors.Is(err, identity.ErrValidation) {
			t.Errorf("lookup miss must not look like a validation error")
		}
	}

	_, err = r.Lookup(1, 2)
	if err.Error() != "No password entry for batch 1 serial 0002." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestNew_RejectsInvalid(t *testing.T) {
	_, err := New([]Entry{{Batch: 1, Serial: 1, Password: "abcdefgh"}, {Batch: 1, Serial: 1, Password: "abcdefgh"}})
	if err == nil {
		t.Error("expected duplicate error")
	}
}

func TestResolve(t *testing.T) {
	r, err := New([]Entry{{Batch: 1, Serial: 1, Password: "abcdefgh"}})
	if err != nil {
		t.Fatal(err)
	}
	f := identity.NewFormatter(identity.DateStamped)

	d, err := r.Resolve(f, identity.Request{Batch: 1, Serial: 1, Year: 25, Month: 1, HasDate: true})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	id, _ := f.Format(identity.Request{Batch: 1, Serial: 1, Year: 25, Month: 1, HasDate: true})
	if d.Serial != id.Serial || d.SSID != id.SSID {
		t.Errorf("identity %+v does not match formatter output %+v", d, id)
	}
	if d.Password != "abcdefgh" {
		t.Errorf("Password = %q", d.Password)
	}

	// Validation is reported before the lookup miss.
	_, err = r.Resolve(f, identity.Request{Batch: 9, Serial: 500, Year: 25, Month: 1, HasDate: true})
	if !errors.Is(err, identity.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	_, err = r.Resolve(f, identity.Request{Batch: 9, Serial: 1, Year: 25, Month: 1, HasDate: true})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected lookup miss, got %v", err)
	}
}
