package customerio

import "context"

// Result is the pending outcome of a single API call. It settles exactly once.
type Result struct {
	done chan struct{}
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Settled returns a Result that has already settled with err.
func Settled(err error) *Result {
	r := newResult()
	r.settle(err)
	return r
}

func (r *Result) settle(err error) {
	r.err = err
	close(r.done)
}

// Done is closed once the call has settled.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err reports the outcome once Done is closed; before that it returns nil.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the call settles or ctx is done. Giving up on ctx does not
// cancel the request itself.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
