package catalog

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is a catalog definition error with its CUE position.
type CompileError struct {
	Path    string // e.g. application.greenhouse.event.too-hot
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Path, e.Message)
	}
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// formatCUEErrors splits a CUE error into positioned CompileErrors.
func formatCUEErrors(err error) []error {
	if err == nil {
		return nil
	}
	cueErrs := errors.Errors(err)
	if len(cueErrs) == 0 {
		return []error{err}
	}

	out := make([]error, 0, len(cueErrs))
	for _, e := range cueErrs {
		ce := &CompileError{Path: strings.Join(e.Path(), ".")}
		format, args := e.Msg()
		ce.Message = fmt.Sprintf(format, args...)
		if positions := errors.Positions(e); len(positions) > 0 {
			ce.Pos = positions[0]
		}
		out = append(out, ce)
	}
	return out
}
