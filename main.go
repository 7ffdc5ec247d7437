// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Provisioner - Controller factory provisioning tool
//
// Serves the operator UI that derives each unit's identity, runs the
// platform flashing script and builds factory configuration images.

package main

import (
	"os"

	"github.com/Thermoquad/provisioner/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
