// Package fault carries the fail-stop error class. A Fatal error means the
// robot must not move: main stops the motors, reports the fault once and halts.
package fault

import (
	"errors"
	"fmt"
)

// Fatal is an unrecoverable startup failure.
type Fatal struct {
	Op  string
	Err error
}

func (f *Fatal) Error() string {
	if f.Err == nil {
		return "fatal: " + f.Op
	}
	return fmt.Sprintf("fatal: %s: %v", f.Op, f.Err)
}

func (f *Fatal) Unwrap() error { return f.Err }

// Wrap marks err as fatal for op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Fatal{Op: op, Err: err}
}

// IsFatal reports whether err (or anything it wraps) is a *Fatal.
func IsFatal(err error) bool {
	var f *Fatal
	return errors.As(err, &f)
}
