package match

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"stream-prober/internal/domain"
)

// Compile turns an operator-authored predicate into a FrameMatcher. The
// expression sees the candidate frame as:
//
//	type    - numeric frame type
//	name    - symbolic type name ("settings", "headers", ...)
//	len     - payload length
//	payload - payload as a string
//
// plus the well-known type names bound to their numeric values, so both
// `type == settings` and `name == "settings"` work. An empty expression
// matches any frame. Expressions must evaluate to bool.
func Compile(src string) (domain.FrameMatcher, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(envFor(domain.Frame{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return func(f domain.Frame) bool { return run(program, f) }, nil
}

func run(program *vm.Program, f domain.Frame) bool {
	out, err := expr.Run(program, envFor(f))
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

func envFor(f domain.Frame) map[string]any {
	return map[string]any{
		"type":    int(f.Type),
		"name":    domain.FrameTypeName(f.Type),
		"len":     len(f.Payload),
		"payload": string(f.Payload),

		"data":     int(domain.FrameData),
		"headers":  int(domain.FrameHeaders),
		"settings": int(domain.FrameSettings),
		"ping":     int(domain.FramePing),
		"goaway":   int(domain.FrameGoaway),
	}
}
