package customerio

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument matches (errors.Is) every precondition error returned
// before a request is sent.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	ErrMissingCredentials  error = &argError{msg: "must supply both a site key and an API key"}
	ErrMissingCustomerID   error = &argError{msg: "must supply customerid"}
	ErrMissingIdentifyArgs error = &argError{msg: "must supply customerid and email"}
	ErrMissingTrackArgs    error = &argError{msg: "must supply customerid, event name, and object with data to track"}
)

type argError struct {
	msg string
}

func (e *argError) Error() string { return e.msg }

func (e *argError) Is(target error) bool { return target == ErrInvalidArgument }

// APIError is the outcome of any response other than 200.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(`customer.io returned error: "%s"`, e.Message)
}
