package structure

import (
	"errors"
	"fmt"
)

var ErrStructural = errors.New("structural error")

type ErrorKind string

const (
	KindDuplicateNode    ErrorKind = "duplicate_node"
	KindDanglingNode     ErrorKind = "dangling_node"
	KindDegenerateRod    ErrorKind = "degenerate_rod"
	KindDegenerateMuscle ErrorKind = "degenerate_muscle"
	KindUnattachedNode   ErrorKind = "unattached_node"
	KindUnknownRole      ErrorKind = "unknown_role"
	KindGroupRole        ErrorKind = "group_role_conflict"
	KindBadMarker        ErrorKind = "bad_marker"
	KindBadParameter     ErrorKind = "bad_parameter"
)

// Error describes a malformed spec element. It matches ErrStructural with errors.Is.
type Error struct {
	Kind    ErrorKind
	Element string
	Index   int
	Detail  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s %s[%d]: %s", ErrStructural, e.Kind, e.Element, e.Index, e.Detail)
}

func (e *Error) Unwrap() error {
	return ErrStructural
}

func newError(kind ErrorKind, element string, index int, format string, args ...any) *Error {
	return &Error{Kind: kind, Element: element, Index: index, Detail: fmt.Sprintf(format, args...)}
}
