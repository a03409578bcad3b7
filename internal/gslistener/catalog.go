package gslistener

import (
	"context"

	"github.com/openwcps/wcps-auth/internal/db"
)

// Catalog is the slice of the server catalog the admission exchange
// needs. Satisfied by db.PostgresCatalog; mocked in tests.
type Catalog interface {
	// ListActiveServers returns the registered game server endpoints.
	ListActiveServers(ctx context.Context) ([]db.ServerRecord, error)
}
