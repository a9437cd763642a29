package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/casetext/customerio-client/internal/broker/messages"
	"github.com/casetext/customerio-client/internal/models"
	"github.com/casetext/customerio-client/pkg/customerio"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Repository interface {
	ListDeliveries(ctx context.Context, customerID string, limit, offset int) ([]*models.Delivery, error)
}

// Service accepts customer.io commands and queues them for the relay. It
// checks the same preconditions as customerio.Client so a bad command is
// refused here instead of being recorded as rejected later.
type Service struct {
	pub   Publisher
	repo  Repository
	topic string

	now   func() time.Time
	newID func() string
}

func New(pub Publisher, repo Repository, topic string) *Service {
	return &Service{
		pub:   pub,
		repo:  repo,
		topic: topic,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (s *Service) Identify(ctx context.Context, customerID, email string, attrs map[string]any) (string, error) {
	if customerID == "" || email == "" {
		return "", customerio.ErrMissingIdentifyArgs
	}
	return s.publish(ctx, messages.CustomerCommand{
		Op:         models.OpIdentify,
		CustomerID: customerID,
		Email:      email,
		Attributes: attrs,
	})
}

func (s *Service) Delete(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", customerio.ErrMissingCustomerID
	}
	return s.publish(ctx, messages.CustomerCommand{
		Op:         models.OpDelete,
		CustomerID: customerID,
	})
}

func (s *Service) Track(ctx context.Context, customerID, name string, data map[string]any) (string, error) {
	if customerID == "" || name == "" || data == nil {
		return "", customerio.ErrMissingTrackArgs
	}
	return s.publish(ctx, messages.CustomerCommand{
		Op:         models.OpTrack,
		CustomerID: customerID,
		EventName:  name,
		EventData:  data,
	})
}

func (s *Service) ListDeliveries(ctx context.Context, customerID string, limit, offset int) ([]*models.Delivery, error) {
	if customerID == "" {
		return nil, customerio.ErrMissingCustomerID
	}
	if s.repo == nil {
		return nil, errors.New("delivery log is not configured")
	}
	return s.repo.ListDeliveries(ctx, customerID, limit, offset)
}

func (s *Service) publish(ctx context.Context, cmd messages.CustomerCommand) (string, error) {
	cmd.ID = s.newID()
	cmd.RequestedAt = s.now()

	b, err := json.Marshal(cmd)
	if err != nil {
		return "", errors.Wrap(err, "marshal command")
	}
	if err := s.pub.Publish(ctx, s.topic, []byte(cmd.CustomerID), b); err != nil {
		return "", err
	}
	return cmd.ID, nil
}
