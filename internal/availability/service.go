package availability

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

var tracer = otel.Tracer("healthfirst.internal.availability")

// List ranges default to defaultRangeDays and may span at most maxRangeDays.
const (
	defaultRangeDays = 30
	maxRangeDays     = 92
)

// ErrInvalidRange is returned for malformed or oversized list ranges.
var ErrInvalidRange = errors.New("availability: invalid date range")

// Service manages a provider's slots.
type Service struct {
	repo   Repository
	logger *logging.Logger
	notes  *bluemonday.Policy
	now    func() time.Time
}

func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("availability: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		notes:  bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// List returns slots dated within [from, to]. Empty bounds default to today
// and the following defaultRangeDays.
func (s *Service) List(ctx context.Context, providerID, from, to string) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "availability.list")
	defer span.End()

	start := s.now().UTC().Truncate(24 * time.Hour)
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return nil, fmt.Errorf("%w: from", ErrInvalidRange)
		}
		start = t
	}
	end := start.AddDate(0, 0, defaultRangeDays)
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return nil, fmt.Errorf("%w: to", ErrInvalidRange)
		}
		end = t
	}
	if end.Before(start) || end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, ErrInvalidRange
	}
	span.SetAttributes(attribute.String("healthfirst.provider_id", providerID))
	return s.repo.List(ctx, providerID, start.Format(dateLayout), end.Format(dateLayout))
}

// Add validates in and stores it as a new slot.
func (s *Service) Add(ctx context.Context, providerID string, in SlotInput) (*Slot, error) {
	ctx, span := tracer.Start(ctx, "availability.add")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.provider_id", providerID))

	if err := s.prepare(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	slot := fromInput(uuid.NewString(), providerID, in)
	slot.CreatedAt = now
	slot.UpdatedAt = now
	if err := s.repo.Create(ctx, &slot); err != nil {
		if !errors.Is(err, ErrOverlap) {
			span.RecordError(err)
		}
		return nil, err
	}
	s.logger.Info("availability slot added", "provider_id", providerID, "slot_id", slot.ID, "date", slot.Date)
	return &slot, nil
}

// Update replaces the writable fields of an existing slot.
func (s *Service) Update(ctx context.Context, providerID, id string, in SlotInput) (*Slot, error) {
	ctx, span := tracer.Start(ctx, "availability.update")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.provider_id", providerID), attribute.String("healthfirst.slot_id", id))

	if err := s.prepare(&in); err != nil {
		return nil, err
	}
	cur, err := s.repo.Get(ctx, providerID, id)
	if err != nil {
		return nil, err
	}
	slot := fromInput(id, providerID, in)
	slot.CreatedAt = cur.CreatedAt
	slot.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, &slot); err != nil {
		if !errors.Is(err, ErrOverlap) && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	return &slot, nil
}

// Delete removes a slot.
func (s *Service) Delete(ctx context.Context, providerID, id string) error {
	ctx, span := tracer.Start(ctx, "availability.delete")
	defer span.End()
	if err := s.repo.Delete(ctx, providerID, id); err != nil {
		return err
	}
	s.logger.Info("availability slot deleted", "provider_id", providerID, "slot_id", id)
	return nil
}

func (s *Service) prepare(in *SlotInput) error {
	// Notes are stored as plain text: markup is stripped, entities decoded.
	in.Notes = html.UnescapeString(s.notes.Sanitize(in.Notes))
	return in.normalize()
}

func fromInput(id, providerID string, in SlotInput) Slot {
	return Slot{
		ID:              id,
		ProviderID:      providerID,
		Date:            in.Date,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		LocationType:    in.LocationType,
		AppointmentType: in.AppointmentType,
		BaseFee:         in.BaseFee,
		Currency:        in.Currency,
		Notes:           in.Notes,
	}
}
