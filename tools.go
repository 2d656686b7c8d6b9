//go:build tools
// +build tools

// Package tools pins the code generators used by go generate (mockgen)
// so they are tracked in go.mod and resolve on a fresh checkout.
package secret_santa

import (
	_ "go.uber.org/mock/mockgen"
)
