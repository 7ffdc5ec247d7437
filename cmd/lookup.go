// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/provisioner/pkg/identity"
	"github.com/Thermoquad/provisioner/pkg/registry"
)

var (
	lookupBatch     int
	lookupSerial    int
	lookupYear      int
	lookupMonth     int
	lookupPasswords string
	lookupVariant   string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Print the identity of one unit",
	Long: `Derive the identifier and SSID of one unit and look up its password.

Year and month are required for date-stamped identifiers and ignored for the
simple variant.`,
	Example: `  provisioner lookup --batch 1 --year 25 --month 7 --serial 1
  provisioner lookup --variant simple --batch 1 --serial 12`,
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().IntVar(&lookupBatch, "batch", 0, "Batch number")
	lookupCmd.Flags().IntVar(&lookupSerial, "serial", 0, "Serial within the batch (1-100)")
	lookupCmd.Flags().IntVar(&lookupYear, "year", 0, "Build year (two digits)")
	lookupCmd.Flags().IntVar(&lookupMonth, "month", 0, "Build month")
	lookupCmd.Flags().StringVar(&lookupPasswords, "passwords", "", "Password CSV file")
	lookupCmd.Flags().StringVar(&lookupVariant, "variant", "", "Identifier variant (date, simple)")
	lookupCmd.MarkFlagRequired("batch")
	lookupCmd.MarkFlagRequired("serial")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("passwords") {
		cfg.PasswordsPath = lookupPasswords
	}
	if cmd.Flags().Changed("variant") {
		cfg.Variant = lookupVariant
	}
	if err := resolvePaths(&cfg); err != nil {
		return err
	}

	formatter, err := cfg.Formatter()
	if err != nil {
		return err
	}
	passwords, err := registry.Load(cfg.PasswordsPath)
	if err != nil {
		return err
	}

	req := identity.Request{Batch: lookupBatch, Serial: lookupSerial}
	if formatter.Variant == identity.DateStamped {
		if !cmd.Flags().Changed("year") || !cmd.Flags().Changed("month") {
			return fmt.Errorf("--year and --month are required for %s identifiers", formatter.Variant)
		}
		req.Year, req.Month, req.HasDate = lookupYear, lookupMonth, true
	}

	id, err := passwords.Resolve(formatter, req)
	if err != nil {
		return err
	}
	printIdentity(cmd.OutOrStdout(), id)
	return nil
}

func printIdentity(w io.Writer, id identity.DeviceIdentity) {
	fmt.Fprintf(w, "Batch:    %02d\n", id.Batch)
	if id.HasDate {
		fmt.Fprintf(w, "Date:     %02d/%02d\n", id.Year, id.Month)
	}
	fmt.Fprintf(w, "Unit:     %04d\n", id.SerialNumber)
	fmt.Fprintf(w, "Serial:   %s\n", id.Serial)
	fmt.Fprintf(w, "SSID:     %s\n", id.SSID)
	fmt.Fprintf(w, "Password: %s\n", id.Password)
}
