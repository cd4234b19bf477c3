//go:build tools

// Package main-adjacent tool pins. This file is never part of a normal
// build; it only exists so `go mod tidy` keeps the stringer generator our
// go:generate directives (see defs/defs.go) depend on in go.sum.
package tools

import (
	_ "golang.org/x/tools/cmd/stringer"
)
