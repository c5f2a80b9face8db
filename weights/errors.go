package weights

import "fmt"

// FormatError marks a bundle that cannot be trusted: bad magic,
// unsupported version, digest mismatch, or an undecodable payload.
// Construction of an evaluator from such a bundle must fail.
type FormatError string

func (e FormatError) Error() string { return "weights bundle: " + string(e) }

func formatErrorf(format string, args ...any) error {
	return FormatError(fmt.Sprintf(format, args...))
}
