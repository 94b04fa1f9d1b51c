// Package fmtconv implements the printf-specifier → runtime-conversion
// table of spec.md §6. It formats one drained log/snapshot record
// (a format string plus a run of raw 32-bit values) the way the
// device-side `Damson_fprintf` variadic dispatcher would, without
// reimplementing that dispatcher itself (spec.md §1 names it an
// external collaborator, specified only by this conversion table).
package fmtconv

import (
	"fmt"
	"strings"

	"github.com/xyproto/damsonloader/internal/damsonerr"
)

// lengthModifiers are C length modifiers that can appear between a
// directive's width/precision and its conversion character. Go's
// fmt.Sprintf has no equivalent syntax, so they are parsed and
// discarded rather than passed through.
const lengthModifiers = "hlLqjzt"

// Format renders one record's values through format using the §6
// specifier table. It returns an error if format references more
// values than are supplied, or ends mid-directive.
func Format(format string, values []uint32) (string, error) {
	var sb strings.Builder
	vi := 0

	nextValue := func() (uint32, error) {
		if vi >= len(values) {
			return 0, damsonerr.New(damsonerr.ValidationMismatch, "format %q references more values than the %d supplied", format, len(values))
		}
		v := values[vi]
		vi++
		return v, nil
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			i++
			continue
		}

		start := i
		i++ // consume '%'
		if i >= len(format) {
			return "", damsonerr.New(damsonerr.ValidationMismatch, "format %q ends with a bare %%", format)
		}
		if format[i] == '%' {
			sb.WriteByte('%')
			i++
			continue
		}

		// flags
		for i < len(format) && strings.ContainsRune("-+ 0#", rune(format[i])) {
			i++
		}
		// width
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		// precision
		if i < len(format) && format[i] == '.' {
			i++
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		flagsWidthPrec := format[start+1 : i]
		// length modifiers: parsed, discarded
		for i < len(format) && strings.ContainsRune(lengthModifiers, rune(format[i])) {
			i++
		}
		if i >= len(format) {
			return "", damsonerr.New(damsonerr.ValidationMismatch, "format %q has an unterminated directive", format)
		}

		spec := format[i]
		i++

		v, err := nextValue()
		if err != nil {
			return "", err
		}

		rendered, err := convert(spec, flagsWidthPrec, v)
		if err != nil {
			return "", err
		}
		sb.WriteString(rendered)
	}

	return sb.String(), nil
}

// convert applies one §6 conversion to a single raw value.
func convert(spec byte, flagsWidthPrec string, v uint32) (string, error) {
	switch spec {
	case 'd', 'i':
		return fmt.Sprintf("%"+flagsWidthPrec+"d", int32(v)), nil
	case 'o':
		return fmt.Sprintf("%"+flagsWidthPrec+"o", v), nil
	case 'x':
		return fmt.Sprintf("%"+flagsWidthPrec+"x", v), nil
	case 'X':
		return fmt.Sprintf("%"+flagsWidthPrec+"X", v), nil
	case 'u':
		return fmt.Sprintf("%"+flagsWidthPrec+"d", v), nil
	case 'c':
		return fmt.Sprintf("%"+flagsWidthPrec+"c", rune(byte(v))), nil
	case 's':
		// The value is a pointer into device memory; not meaningful on
		// this channel. Emitted raw rather than dereferenced.
		return fmt.Sprintf("%"+flagsWidthPrec+"d", v), nil
	case 'f', 'e', 'E', 'g', 'G':
		q1616 := float64(int32(v)) / 65536.0
		return fmt.Sprintf("%"+flagsWidthPrec+string(spec), q1616), nil
	case 'p':
		return fmt.Sprintf("0x%x", v), nil
	default:
		return "", damsonerr.New(damsonerr.ValidationMismatch, "unsupported format specifier %%%c", spec)
	}
}
