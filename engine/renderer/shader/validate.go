package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// unsupportedMarkers are fragments of naga errors raised for WGSL features the pure-Go compiler does not cover yet.
// Sources rejected for one of these reasons may still be valid for the driver's compiler.
var unsupportedMarkers = []string{
	"not yet implemented",
	"not supported",
	"unsupported",
	"lowering error",
	"atomic",
}

// Validate compiles the pre-processed source of s to SPIR-V with naga. The output is discarded, only the diagnostics
// matter.
//
// Parameters:
//   - s: the shader to validate
//
// Returns:
//   - error: the compiler diagnostic, nil if the source compiled
func Validate(s Shader) error {
	if _, err := naga.Compile(s.Source()); err != nil {
		return fmt.Errorf("shader %s: %w", s.Key(), err)
	}
	return nil
}

// IsUnsupported reports whether err comes from a compiler limitation rather than an error in the source.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range unsupportedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
