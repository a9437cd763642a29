package commands_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/casetext/customerio-client/internal/models"
	"github.com/casetext/customerio-client/pkg/customerio"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

type Service interface {
	Identify(ctx context.Context, customerID, email string, attrs map[string]any) (string, error)
	Delete(ctx context.Context, customerID string) (string, error)
	Track(ctx context.Context, customerID, name string, data map[string]any) (string, error)
	ListDeliveries(ctx context.Context, customerID string, limit, offset int) ([]*models.Delivery, error)
}

type CommandsAPI struct {
	svc Service
}

func New(svc Service) *CommandsAPI {
	return &CommandsAPI{svc: svc}
}

func (a *CommandsAPI) Routes(r chi.Router) {
	r.Route("/v1/customers/{customerID}", func(r chi.Router) {
		r.Put("/", a.identify)
		r.Delete("/", a.delete)
		r.Post("/events", a.track)
		r.Get("/deliveries", a.listDeliveries)
	})
}

type identifyRequest struct {
	Email      string         `json:"email"`
	Attributes map[string]any `json:"attributes"`
}

type trackRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type deliveryDTO struct {
	ID          uint64    `json:"id"`
	CommandID   string    `json:"commandId"`
	Op          string    `json:"op"`
	CustomerID  string    `json:"customerId"`
	Status      string    `json:"status"`
	StatusCode  *int32    `json:"statusCode,omitempty"`
	Error       *string   `json:"error,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type listDeliveriesResponse struct {
	Deliveries []deliveryDTO `json:"deliveries"`
}

func (a *CommandsAPI) identify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := a.svc.Identify(r.Context(), customerID(r), req.Email, req.Attributes)
	writeAccepted(w, id, err)
}

func (a *CommandsAPI) delete(w http.ResponseWriter, r *http.Request) {
	id, err := a.svc.Delete(r.Context(), customerID(r))
	writeAccepted(w, id, err)
}

func (a *CommandsAPI) track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := a.svc.Track(r.Context(), customerID(r), req.Name, req.Data)
	writeAccepted(w, id, err)
}

func (a *CommandsAPI) listDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	ds, err := a.svc.ListDeliveries(r.Context(), customerID(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := listDeliveriesResponse{Deliveries: make([]deliveryDTO, 0, len(ds))}
	for _, d := range ds {
		out.Deliveries = append(out.Deliveries, deliveryDTO{
			ID:          d.ID,
			CommandID:   d.CommandID,
			Op:          d.Op,
			CustomerID:  d.CustomerID,
			Status:      d.Status,
			StatusCode:  d.StatusCode,
			Error:       d.Error,
			RequestedAt: d.RequestedAt,
			DeliveredAt: d.DeliveredAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// customerID returns the decoded path id. chi matches on RawPath when the
// request has one, and only then is the param still escaped.
func customerID(r *http.Request) string {
	id := chi.URLParam(r, "customerID")
	if r.URL.RawPath == "" {
		return id
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeAccepted(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, customerio.ErrInvalidArgument) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	slog.Error("commands api", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
