package check

import (
	"fmt"

	"github.com/pkg/errors"
)

func check(ok bool, msgAndArgs []interface{}, format string, args ...interface{}) error {
	if ok {
		return nil
	}
	err := errors.Errorf(format, args...)
	if msg := message(msgAndArgs...); msg != "" {
		return errors.Wrap(err, msg)
	}
	return err
}

func message(msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 0:
		return ""
	case len(msgAndArgs) == 1:
		if msg, ok := msgAndArgs[0].(string); ok {
			return msg
		}
		return fmt.Sprintf("%+v", msgAndArgs[0])
	default:
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	}
}

// True checks whether the actual value is true.
func True(actual bool, msgAndArgs ...interface{}) error {
	return check(actual, msgAndArgs, "expected true, got false")
}

// Contains checks whether the actual value is contained in the expected list.
func Contains(actual interface{}, expected []interface{}, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%v not in %v", actual, expected)
}

// NotEmpty checks whether the string is non-empty.
func NotEmpty(actual string, msgAndArgs ...interface{}) error {
	return check(actual != "", msgAndArgs, "expected a non-empty value")
}

// GreaterThan checks whether actual is greater than expected.
func GreaterThan[T int | int64 | uint64 | float64](
	actual, expected T, msgAndArgs ...interface{},
) error {
	return check(actual > expected, msgAndArgs, "%v is not greater than %v", actual, expected)
}

// GreaterThanOrEqualTo checks whether actual is greater than or equal to expected.
func GreaterThanOrEqualTo[T int | int64 | uint64 | float64](
	actual, expected T, msgAndArgs ...interface{},
) error {
	return check(actual >= expected, msgAndArgs,
		"%v is not greater than or equal to %v", actual, expected)
}
