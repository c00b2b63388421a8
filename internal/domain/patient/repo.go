package patient

import "context"

// Repository is the document store holding patient records.
//
// Create assigns ID, CreatedAt and UpdatedAt and returns ErrConflict when the
// national ID is taken. GetByID and Update return ErrNotFound for unknown ids
// and ErrInvalidID for ids the store cannot represent. Find returns the
// records that may match f in storage order; callers apply f themselves to
// obtain the final membership and order.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	Find(ctx context.Context, f Filter) ([]*Record, error)
}
