package orchestrator

import (
	"reflect"

	"github.com/guoyu07/rocketeer/internal/domain"
)

// Outcome is what a task body hands back to the executor: either an explicit
// success/failure, or nothing, in which case the verdict is inherited from the
// exit status of the last command the body ran.
type Outcome struct {
	explicit bool
	value    bool
}

// Explicit returns an outcome that decides the verdict on its own.
func Explicit(ok bool) Outcome { return Outcome{explicit: true, value: ok} }

// Succeed is Explicit(true).
func Succeed() Outcome { return Explicit(true) }

// Fail is Explicit(false).
func Fail() Outcome { return Explicit(false) }

// Inherit defers the verdict to the last command's exit status.
func Inherit() Outcome { return Outcome{} }

// IsExplicit reports whether the body returned a value.
func (o Outcome) IsExplicit() bool { return o.explicit }

// Value is the explicit value; false for inherited outcomes.
func (o Outcome) Value() bool { return o.explicit && o.value }

// Coerce turns an arbitrary return value into an Outcome.
//
// nil (including typed nil pointers, maps, slices and interfaces) is "returned
// nothing". Everything else is explicit: false, zero numbers, empty strings and
// empty collections are failures, a non-nil error is a failure, any other
// value is a success.
func Coerce(v any) Outcome {
	switch x := v.(type) {
	case nil:
		return Inherit()
	case Outcome:
		return x
	case bool:
		return Explicit(x)
	case string:
		return Explicit(x != "")
	case error:
		return Explicit(false)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Inherit()
		}
		return Explicit(true)
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return Inherit()
		}
		return Explicit(rv.Len() > 0)
	case reflect.Array, reflect.Chan:
		return Explicit(rv.Len() > 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Explicit(rv.Int() != 0)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Explicit(rv.Uint() != 0)
	case reflect.Float32, reflect.Float64:
		return Explicit(rv.Float() != 0)
	case reflect.String:
		return Explicit(rv.Len() > 0)
	case reflect.Bool:
		return Explicit(rv.Bool())
	}
	return Explicit(true)
}

// resolveVerdict applies the success rule: an explicit outcome always wins
// over the inferred exit status.
func resolveVerdict(o Outcome, lastExitOK bool) domain.Verdict {
	ok := lastExitOK
	if o.IsExplicit() {
		ok = o.Value()
	}
	if ok {
		return domain.VerdictSuccess
	}
	return domain.VerdictFailure
}
