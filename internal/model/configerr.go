package model

import (
	"fmt"
	"strconv"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrDetails flattens a CUE validation error into one human readable
// line per broken constraint, so the startup code can log them before
// failing. Non-CUE errors yield a single line with err.Error().
func CueErrDetails(err error) []string {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []string{err.Error()}
	}

	seen := make(map[string]struct{}, len(errs))
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		var b strings.Builder
		if path := normalizePath(e.Path()); path != "" {
			b.WriteString(path)
			b.WriteString(": ")
		}
		b.WriteString(sprintf(format, args))
		if pos := position(e); pos != "" {
			b.WriteString(" (")
			b.WriteString(pos)
			b.WriteString(")")
		}
		line := b.String()
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

func sprintf(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func position(err cueerrors.Error) string {
	for _, r := range cueerrors.Positions(err) {
		if r.Filename() == "" {
			continue
		}
		return r.Filename() + ":" + strconv.Itoa(r.Line())
	}
	return ""
}

func normalizePath(p []string) string {
	if len(p) == 0 {
		return ""
	}
	// drop the leading #Config definition
	if strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}
