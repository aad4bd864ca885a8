package device

import "github.com/pkg/errors"

// wrap attaches an operation name to a driver error, so a failure is never
// returned without context. It does not log or drain the driver's error
// stack.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "device: %s", op)
}
