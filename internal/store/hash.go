package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jward/fffauto/internal/fakes"
)

// ComputeSignatureHash computes a deterministic hash over every field of a
// record. Argument order is significant.
func ComputeSignatureHash(r fakes.Record) string {
	h := sha256.New()

	fmt.Fprintf(h, "name:%s\n", r.Name)
	fmt.Fprintf(h, "return:%s\n", r.ReturnType)
	fmt.Fprintf(h, "args:%d\n", len(r.ArgTypes))
	for i, arg := range r.ArgTypes {
		fmt.Fprintf(h, "arg:%d:%s\n", i, arg)
	}

	return hex.EncodeToString(h.Sum(nil))
}
