package pgdelivery

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS deliveries (
  id BIGSERIAL PRIMARY KEY,
  command_id TEXT NOT NULL,
  op TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  status TEXT NOT NULL,
  status_code INT NULL,
  error TEXT NULL,
  requested_at TIMESTAMPTZ NOT NULL,
  delivered_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (command_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_customer_id_delivered_at ON deliveries(customer_id, delivered_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
