package login

import (
	"context"

	"github.com/openwcps/wcps-auth/internal/db"
)

// Catalog is the slice of the user catalog the login exchange needs.
// Satisfied by db.PostgresCatalog; mocked in tests.
type Catalog interface {
	// LookupUser returns the user row, or nil, nil when absent.
	LookupUser(ctx context.Context, username string) (*db.UserRecord, error)

	// DisplaynameTaken reports whether the display name is in use.
	DisplaynameTaken(ctx context.Context, displayname string) (bool, error)

	// UpdateDisplayname persists a new display name.
	UpdateDisplayname(ctx context.Context, username, displayname string) error
}
