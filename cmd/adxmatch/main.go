// Copyright (C) The Adxmatch Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/mebh/adxmatch"

func main() {
	adxmatch.Main()
}
