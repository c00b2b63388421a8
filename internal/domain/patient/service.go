package patient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Service struct {
	records Repository
	loc     *time.Location
}

// NewService wires the record contract to a store. loc is the clinic time
// zone used for date-only values; nil means UTC.
func NewService(records Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{records: records, loc: loc}
}

// Location returns the time zone used to read date-only values.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	r, err := FromInput(in, s.loc)
	if err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	r, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	return r, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Record, error) {
	current, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	if p.Empty() {
		return current, nil
	}
	merged, err := ApplyPatch(current, p, s.loc)
	if err != nil {
		return nil, err
	}
	if err := s.records.Update(ctx, merged); err != nil {
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
	return merged, nil
}

// List re-derives the filtered, ordered view from the current store contents.
func (s *Service) List(ctx context.Context, f Filter) ([]*Record, error) {
	candidates, err := s.records.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return f.Apply(candidates), nil
}

func lookupError(err error) error {
	if errors.Is(err, ErrInvalidID) {
		verr := newValidationError()
		verr.add("id", "is not a valid identifier")
		return verr
	}
	return fmt.Errorf("get patient: %w", err)
}
