// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/provisioner/pkg/factorycfg"
)

// EnvPassword supplies the SoftAP password to payload gen.
const EnvPassword = "PROVISIONER_PASSWORD"

var (
	payloadSerial    string
	payloadPassword  string
	payloadOutput    string
	payloadPartition string
)

var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Generate or inspect factory configuration images",
}

var payloadGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Write a factory configuration partition image",
	Long: `Build the factory configuration payload for one unit and write it into a
partition image filled with 0xFF.

The password is taken from --password, then the PROVISIONER_PASSWORD
environment variable, and is prompted for interactively if neither is set.`,
	Example: `  provisioner payload gen --serial CC01-25070001 --output build/factory_cfg.bin
  provisioner payload gen --serial UNIT01 --password abcdefgh --output f.bin --partition-size 0x2000`,
	RunE: runPayloadGen,
}

var payloadInspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Decode and verify a factory configuration image",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayloadInspect,
}

func init() {
	payloadGenCmd.Flags().StringVar(&payloadSerial, "serial", "", "Factory serial suffix (alphanumeric/_/-, <=28 chars)")
	payloadGenCmd.Flags().StringVar(&payloadPassword, "password", "", "SoftAP password (8-63 printable ASCII)")
	payloadGenCmd.Flags().StringVarP(&payloadOutput, "output", "o", "", "Output file path for the partition image")
	payloadGenCmd.Flags().StringVar(&payloadPartition, "partition-size", "0x10000", "Total partition size in bytes")
	payloadGenCmd.MarkFlagRequired("serial")
	payloadGenCmd.MarkFlagRequired("output")

	payloadCmd.AddCommand(payloadGenCmd, payloadInspectCmd)
	rootCmd.AddCommand(payloadCmd)
}

func runPayloadGen(cmd *cobra.Command, args []string) error {
	size, err := factorycfg.ParseSize(payloadPartition)
	if err != nil {
		return err
	}

	serial, err := factorycfg.SanitizeSerial(payloadSerial)
	if err != nil {
		return fmt.Errorf("Serial validation failed: %w", err)
	}

	raw, err := readPassword(payloadPassword, os.LookupEnv, promptPassword)
	if err != nil {
		return err
	}
	password, err := factorycfg.ValidatePassword(raw)
	if err != nil {
		return fmt.Errorf("Password validation failed: %w", err)
	}

	image, err := factorycfg.Build(serial, password, size)
	if err != nil {
		return err
	}
	if err := factorycfg.WriteImage(payloadOutput, image); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote factory payload: serial=%s password_len=%d size=%d bytes -> %s\n",
		serial, len(password), size, payloadOutput)
	return nil
}

func runPayloadInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	p, err := factorycfg.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	printPayload(cmd.OutOrStdout(), p, data)
	return nil
}

func printPayload(w io.Writer, p *factorycfg.Payload, image []byte) {
	fmt.Fprintf(w, "Magic:     0x%08X (FCPF)\n", uint32(factorycfg.Magic))
	fmt.Fprintf(w, "Version:   %d\n", p.Version)
	fmt.Fprintf(w, "Flags:     0x%04X\n", p.Flags)
	fmt.Fprintf(w, "Serial:    %s\n", p.Serial)
	fmt.Fprintf(w, "Password:  %s\n", strings.Repeat("*", len(p.Password)))
	fmt.Fprintf(w, "CRC:       0x%08X (ok)\n", p.CRC)
	fmt.Fprintf(w, "Image:     %d bytes", len(image))

	padding := image[factorycfg.PayloadSize:]
	erased := 0
	for _, b := range padding {
		if b == factorycfg.ErasedByte {
			erased++
		}
	}
	if erased == len(padding) {
		fmt.Fprintf(w, ", padding erased\n")
	} else {
		fmt.Fprintf(w, ", %d of %d padding bytes not 0xFF\n", len(padding)-erased, len(padding))
	}
}

// readPassword returns the flag value, then the environment value, then
// whatever prompt reads.
func readPassword(flagValue string, lookupEnv func(string) (string, bool), prompt func() (string, error)) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if pw, ok := lookupEnv(EnvPassword); ok && pw != "" {
		return pw, nil
	}
	return prompt()
}

// promptPassword reads a password from the terminal without echo, falling
// back to a plain line read when stdin is not a terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil && password == "" {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimRight(password, "\r\n"), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
