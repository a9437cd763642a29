package fake

import (
	"context"
	"maps"
	"sync"

	"github.com/casetext/customerio-client/pkg/customerio"
)

// Call is one recorded operation.
type Call struct {
	Op         string
	CustomerID string
	Email      string
	Name       string
	Data       map[string]any
}

// Client records calls instead of sending them. It applies the same argument
// checks as customerio.Client so callers see identical precondition errors.
// Every accepted call settles with Err.
type Client struct {
	Err error

	mu    sync.Mutex
	calls []Call
}

func New() *Client { return &Client{} }

func (c *Client) Identify(ctx context.Context, customerID, email string, attrs map[string]any) (*customerio.Result, error) {
	if customerID == "" || email == "" {
		return nil, customerio.ErrMissingIdentifyArgs
	}
	return c.record(Call{Op: "identify", CustomerID: customerID, Email: email, Data: maps.Clone(attrs)}), nil
}

func (c *Client) Delete(ctx context.Context, customerID string) (*customerio.Result, error) {
	if customerID == "" {
		return nil, customerio.ErrMissingCustomerID
	}
	return c.record(Call{Op: "delete", CustomerID: customerID}), nil
}

func (c *Client) Track(ctx context.Context, customerID, name string, data map[string]any) (*customerio.Result, error) {
	if customerID == "" || name == "" || data == nil {
		return nil, customerio.ErrMissingTrackArgs
	}
	return c.record(Call{Op: "track", CustomerID: customerID, Name: name, Data: maps.Clone(data)}), nil
}

func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Client) record(call Call) *customerio.Result {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	err := c.Err
	c.mu.Unlock()
	return customerio.Settled(err)
}
