package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casetext/customerio-client/internal/broker/messages"
	"github.com/casetext/customerio-client/internal/models"
	"github.com/casetext/customerio-client/pkg/customerio"
	"github.com/pkg/errors"
)

var ErrUnknownOp = errors.New("unknown op")

// CustomerIO is the method set of *customerio.Client.
type CustomerIO interface {
	Identify(ctx context.Context, customerID, email string, attrs map[string]any) (*customerio.Result, error)
	Delete(ctx context.Context, customerID string) (*customerio.Result, error)
	Track(ctx context.Context, customerID, name string, data map[string]any) (*customerio.Result, error)
}

type Deduper interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Recorder interface {
	RecordDelivery(ctx context.Context, in models.DeliveryInput) (*models.Delivery, error)
}

// Relay turns CustomerCommand messages into customer.io calls. Each command
// produces at most one API request; failures are recorded, not retried.
type Relay struct {
	cio   CustomerIO
	dedup Deduper
	rec   Recorder

	dedupTTL time.Duration
	now      func() time.Time

	startedAtUnixNano int64
	lastUnixNano      atomic.Int64
	totalReceived     atomic.Int64
	totalSent         atomic.Int64
	totalFailed       atomic.Int64
	totalRejected     atomic.Int64
	totalDuplicates   atomic.Int64
	inFlight          atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(cio CustomerIO, dedup Deduper, rec Recorder) *Relay {
	return &Relay{
		cio: cio, dedup: dedup, rec: rec,
		dedupTTL:          24 * time.Hour,
		now:               func() time.Time { return time.Now().UTC() },
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Relay) WithDedupTTL(ttl time.Duration) *Relay {
	if ttl > 0 {
		r.dedupTTL = ttl
	}
	return r
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastCommandAt   *time.Time `json:"lastCommandAt,omitempty"`
	TotalReceived   int64      `json:"totalReceived"`
	TotalSent       int64      `json:"totalSent"`
	TotalFailed     int64      `json:"totalFailed"`
	TotalRejected   int64      `json:"totalRejected"`
	TotalDuplicates int64      `json:"totalDuplicates"`
	InFlight        int64      `json:"inFlight"`
	LastError       string     `json:"lastError,omitempty"`
}

func (r *Relay) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalReceived:   r.totalReceived.Load(),
		TotalSent:       r.totalSent.Load(),
		TotalFailed:     r.totalFailed.Load(),
		TotalRejected:   r.totalRejected.Load(),
		TotalDuplicates: r.totalDuplicates.Load(),
		InFlight:        r.inFlight.Load(),
	}
	if n := r.lastUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCommandAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

// Handle processes one Kafka message. It returns an error only when the
// outcome could not be stored, so that the message is not committed.
func (r *Relay) Handle(ctx context.Context, key, value []byte) error {
	r.totalReceived.Add(1)
	r.lastUnixNano.Store(r.now().UnixNano())
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	var cmd messages.CustomerCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		r.reject("decode command", err, "key", string(key))
		return nil
	}
	if cmd.ID == "" {
		r.reject("command without id", errors.New("id is required"), "key", string(key))
		return nil
	}

	if r.dedup != nil {
		first, err := r.dedup.MarkSeen(ctx, cmd.ID, r.dedupTTL)
		if err != nil {
			return err
		}
		if !first {
			r.totalDuplicates.Add(1)
			slog.Info("duplicate command skipped", "command_id", cmd.ID, "customer_id", cmd.CustomerID)
			return nil
		}
	}

	in := models.DeliveryInput{
		CommandID:   cmd.ID,
		Op:          cmd.Op,
		CustomerID:  cmd.CustomerID,
		RequestedAt: cmd.RequestedAt,
	}
	if in.RequestedAt.IsZero() {
		in.RequestedAt = r.now()
	}

	res, err := r.dispatch(ctx, cmd)
	if err != nil {
		r.totalRejected.Add(1)
		r.setLastError(err)
		slog.Warn("command rejected", "command_id", cmd.ID, "op", cmd.Op, "error", err.Error())
		in.Status = models.DeliveryStatusRejected
		in.Error = strPtr(err.Error())
	} else {
		callErr := res.Wait(ctx)
		if ctx.Err() != nil {
			r.forget(ctx, cmd.ID)
			return ctx.Err()
		}
		r.classify(&in, callErr)
	}
	in.DeliveredAt = r.now()

	if _, err := r.rec.RecordDelivery(ctx, in); err != nil {
		r.setLastError(err)
		r.forget(ctx, cmd.ID)
		return err
	}
	return nil
}

func (r *Relay) dispatch(ctx context.Context, cmd messages.CustomerCommand) (*customerio.Result, error) {
	switch cmd.Op {
	case models.OpIdentify:
		return r.cio.Identify(ctx, cmd.CustomerID, cmd.Email, cmd.Attributes)
	case models.OpDelete:
		return r.cio.Delete(ctx, cmd.CustomerID)
	case models.OpTrack:
		return r.cio.Track(ctx, cmd.CustomerID, cmd.EventName, cmd.EventData)
	default:
		return nil, errors.Wrapf(ErrUnknownOp, "op %q", cmd.Op)
	}
}

func (r *Relay) classify(in *models.DeliveryInput, callErr error) {
	if callErr == nil {
		r.totalSent.Add(1)
		in.Status = models.DeliveryStatusSent
		slog.Info("command sent", "command_id", in.CommandID, "op", in.Op, "customer_id", in.CustomerID)
		return
	}

	r.totalFailed.Add(1)
	r.setLastError(callErr)
	in.Status = models.DeliveryStatusFailed
	in.Error = strPtr(callErr.Error())

	var apiErr *customerio.APIError
	if errors.As(callErr, &apiErr) {
		code := int32(apiErr.StatusCode)
		in.StatusCode = &code
	}
	slog.Error("command failed", "command_id", in.CommandID, "op", in.Op, "customer_id", in.CustomerID, "error", callErr.Error())
}

func (r *Relay) reject(msg string, err error, args ...any) {
	r.totalRejected.Add(1)
	r.setLastError(err)
	slog.Warn(msg, append(args, "error", err.Error())...)
}

func (r *Relay) forget(ctx context.Context, id string) {
	if r.dedup == nil {
		return
	}
	if err := r.dedup.Forget(context.WithoutCancel(ctx), id); err != nil {
		slog.Error("release dedup mark", "command_id", id, "error", err.Error())
	}
}

func (r *Relay) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
