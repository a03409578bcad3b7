package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is one row of the user catalog.
type UserRecord struct {
	ID           int
	Username     string
	Displayname  string
	PasswordHash string
	Salt         string
	Rights       int
}

// ServerRecord identifies one registered game server in the catalog.
type ServerRecord struct {
	NodeID  string
	Address string
	Port    int
}

// PostgresCatalog implements the user/server catalog on PostgreSQL.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog backed by the given pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// LookupUser returns the user row for the username.
// Returns nil, nil if the user does not exist.
func (c *PostgresCatalog) LookupUser(ctx context.Context, username string) (*UserRecord, error) {
	username = strings.ToLower(username)
	var u UserRecord
	err := c.pool.QueryRow(ctx,
		`SELECT id, username, displayname, password, salt, rights
		 FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.Displayname, &u.PasswordHash, &u.Salt, &u.Rights)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user %q: %w", username, err)
	}
	return &u, nil
}

// DisplaynameTaken reports whether any user already holds the display
// name.
func (c *PostgresCatalog) DisplaynameTaken(ctx context.Context, displayname string) (bool, error) {
	var count int
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE displayname = $1`, displayname,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("counting displayname %q: %w", displayname, err)
	}
	return count > 0, nil
}

// UpdateDisplayname persists a new display name for the username.
func (c *PostgresCatalog) UpdateDisplayname(ctx context.Context, username, displayname string) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE users SET displayname = $1 WHERE username = $2`,
		displayname, strings.ToLower(username),
	)
	if err != nil {
		return fmt.Errorf("updating displayname for %q: %w", username, err)
	}
	return nil
}

// ListActiveServers returns the master list of game servers admitted to
// register, as (node id, address, port) triples.
func (c *PostgresCatalog) ListActiveServers(ctx context.Context) ([]ServerRecord, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT server_id, address, port FROM servers WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("querying active servers: %w", err)
	}
	defer rows.Close()

	var servers []ServerRecord
	for rows.Next() {
		var s ServerRecord
		if err := rows.Scan(&s.NodeID, &s.Address, &s.Port); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server rows: %w", err)
	}
	return servers, nil
}
