package instrument

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatArgs renders positional arguments as "(a1, a2, ...)". Strings and
// byte slices are quoted so that ("a, b") and ("a", "b") stay distinct.
func FormatArgs(args ...any) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatArg(a))
	}
	sb.WriteByte(')')
	return sb.String()
}

func formatArg(a any) string {
	switch v := a.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case []byte:
		return strconv.Quote(string(v))
	case error:
		return strconv.Quote(v.Error())
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatOutput renders a result. Strings and byte slices are stored raw.
func FormatOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return "nil"
	case string:
		return v
	case []byte:
		return strings.ToValidUTF8(string(v), "\uFFFD")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatError renders a failed call's output.
func FormatError(err error) string { return "error: " + err.Error() }
