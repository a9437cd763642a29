package pgdelivery

import (
	"context"

	"github.com/casetext/customerio-client/internal/models"
	"github.com/pkg/errors"
)

// RecordDelivery stores the outcome of one command. A second record for the
// same command id is ignored and the first one is returned.
func (s *Storage) RecordDelivery(ctx context.Context, in models.DeliveryInput) (*models.Delivery, error) {
	_, err := s.db.Exec(ctx, `
INSERT INTO deliveries (
  command_id, op, customer_id, status, status_code, error, requested_at, delivered_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
ON CONFLICT (command_id) DO NOTHING
`, in.CommandID, in.Op, in.CustomerID, in.Status, in.StatusCode, in.Error, in.RequestedAt.UTC(), in.DeliveredAt.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "insert delivery")
	}

	var d models.Delivery
	err = s.db.QueryRow(ctx, `
SELECT
  id, command_id, op, customer_id, status,
  status_code, error, requested_at, delivered_at, created_at
FROM deliveries
WHERE command_id = $1
`, in.CommandID).Scan(
		&d.ID, &d.CommandID, &d.Op, &d.CustomerID, &d.Status,
		&d.StatusCode, &d.Error, &d.RequestedAt, &d.DeliveredAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "select delivery")
	}
	return &d, nil
}

func (s *Storage) ListDeliveries(ctx context.Context, customerID string, limit, offset int) ([]*models.Delivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, command_id, op, customer_id, status,
  status_code, error, requested_at, delivered_at, created_at
FROM deliveries
WHERE customer_id = $1
ORDER BY delivered_at DESC, id DESC
LIMIT $2 OFFSET $3
`, customerID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select deliveries")
	}
	defer rows.Close()

	out := []*models.Delivery{}
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(
			&d.ID, &d.CommandID, &d.Op, &d.CustomerID, &d.Status,
			&d.StatusCode, &d.Error, &d.RequestedAt, &d.DeliveredAt, &d.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan delivery")
		}
		out = append(out, &d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// CountByStatus returns the number of deliveries per status.
func (s *Storage) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count deliveries")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[status] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
