package address

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no address matches the id.
	ErrNotFound = errors.New("address not found")
	// ErrForbidden is returned when the address belongs to another owner.
	ErrForbidden = errors.New("address belongs to another owner")
)

// MissingFieldError reports a required shipping field left blank.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Address is a shipping destination owned by a single user.
type Address struct {
	ID        int64
	OwnerID   int64
	FullName  string
	Phone     string
	Street    string
	City      string
	State     string
	Pincode   string
	IsDefault bool
	CreatedAt time.Time
}

// Normalize trims every free-text field in place.
func (a *Address) Normalize() {
	for _, f := range []*string{&a.FullName, &a.Phone, &a.Street, &a.City, &a.State, &a.Pincode} {
		*f = strings.TrimSpace(*f)
	}
}

// Validate checks that the mandatory shipping fields are present.
func (a *Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"phone_number", a.Phone},
		{"street_address", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"pincode", a.Pincode},
	}
	for _, r := range required {
		if r.value == "" {
			return &MissingFieldError{Field: r.name}
		}
	}
	return nil
}

// Repository persists addresses. Create must keep at most one default
// address per owner by clearing the flag on the owner's other rows.
type Repository interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]Address, error)
	// GetForOwner returns ErrNotFound for unknown ids and ErrForbidden when
	// the address exists but belongs to someone else.
	GetForOwner(ctx context.Context, id, ownerID int64) (*Address, error)
	Create(ctx context.Context, a *Address) error
}

// Service validates and stores addresses.
type Service struct {
	repo Repository
}

// NewService creates an address Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the owner's addresses, default first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]Address, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return list, nil
}

// Add validates and saves a new address for ownerID.
func (s *Service) Add(ctx context.Context, ownerID int64, a Address) (*Address, error) {
	a.Normalize()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.OwnerID = ownerID

	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, errors.Wrap(err, "create address")
	}
	return &a, nil
}
