// Package codegen writes synthesized loops out as C++ coefficient factories
// for the StateFeedbackLoop runtime, optionally with a JSON sidecar.
package codegen

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

// Names returns count distinct loop names derived from base.
// A single loop is named prefix+base; multiple loops get their index appended.
func Names(base string, count int, prefix string) []string {
	if count < 1 {
		return nil
	}

	if count == 1 {
		return []string{prefix + base}
	}

	names := make([]string, count)
	for i := range names {
		names[i] = prefix + base + strconv.Itoa(i)
	}

	return names
}

// SplitFiles splits files evenly between the given number of systems.
// Every system gets a header, a source and optionally a JSON file, in that order.
// It returns error wrapping control.ErrInterface if the files can not be split that way.
func SplitFiles(files []string, systems int) ([][]string, error) {
	if systems < 1 {
		return nil, errors.Wrapf(control.ErrInterface, "invalid number of systems: %d", systems)
	}

	if len(files) != 2*systems && len(files) != 3*systems {
		return nil, errors.Wrapf(control.ErrInterface, "expected %d or %d files, got %d", 2*systems, 3*systems, len(files))
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f == "" {
			return nil, errors.Wrap(control.ErrInterface, "empty file name")
		}
		if seen[f] {
			return nil, errors.Wrapf(control.ErrInterface, "duplicate file: %s", f)
		}
		seen[f] = true
	}

	per := len(files) / systems
	out := make([][]string, systems)
	for i := range out {
		out[i] = files[i*per : (i+1)*per]
	}

	return out, nil
}

// validName reports whether name is a valid C++ identifier.
func validName(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		switch {
		case r == '_', r < unicode.MaxASCII && unicode.IsLetter(r):
		case i > 0 && r < unicode.MaxASCII && unicode.IsDigit(r):
		default:
			return false
		}
	}

	return true
}

// snake converts a CamelCase name to snake_case keeping acronyms together,
// e.g. KFDrivetrain becomes kf_drivetrain.
func snake(name string) string {
	rs := []rune(name)
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			next := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && next) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// guard returns the include guard of the header at path.
func guard(path string) string {
	var b strings.Builder
	for _, r := range strings.TrimLeft(path, "/.") {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		b.WriteByte('_')
	}
	b.WriteByte('_')

	return b.String()
}
