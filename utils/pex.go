// Package utils holds small formatting helpers shared across the mediator
// and transport packages: "pex" (partial-hex) truncation for compact log
// output of hashes and addresses.
package utils

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// Pex returns the first 8 hex bytes of a hash, suitable for log lines.
func Pex(h common.Hash) string {
	b := h.Bytes()
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b)
}

// APex returns the first 8 hex bytes of an address, suitable for log lines.
func APex(a common.Address) string {
	b := a.Bytes()
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b)
}
