// Package store persists the Gateway record in sqlite, one row per MAC
// address, adapted from the teacher's cache.Manager: plain
// database/sql, hand-written schema, prepared statements, no ORM.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/donghyeon/scaleledger-gateway/pkg/gateway"

	_ "github.com/mattn/go-sqlite3"
)

// GatewayStore is the sqlite-backed KV table for the Gateway record.
type GatewayStore struct {
	db *sql.DB
}

// Open creates (if needed) the directory containing dbPath, opens the
// database, and ensures the gateways table exists.
func Open(dbPath string) (*GatewayStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway store: %w", err)
	}

	gs := &GatewayStore{db: db}
	if err := gs.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize gateway store: %w", err)
	}
	return gs, nil
}

func (gs *GatewayStore) init() error {
	_, err := gs.db.Exec(`CREATE TABLE IF NOT EXISTS gateways (
		id             INTEGER,
		mac_address    TEXT PRIMARY KEY,
		hostname       TEXT,
		ip_address     TEXT,
		name           TEXT,
		description    TEXT,
		access_token   TEXT,
		status         TEXT,
		last_heartbeat DATETIME,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create gateways table: %w", err)
	}
	return nil
}

func (gs *GatewayStore) Close() error {
	return gs.db.Close()
}

// GetByMAC returns the Gateway row for mac, or nil if no row exists.
func (gs *GatewayStore) GetByMAC(mac string) (*gateway.Gateway, error) {
	row := gs.db.QueryRow(`SELECT id, mac_address, hostname, ip_address, name,
		description, access_token, status, last_heartbeat, created_at, updated_at
		FROM gateways WHERE mac_address = ?`, mac)

	var g gateway.Gateway
	var lastHeartbeat sql.NullTime
	err := row.Scan(&g.ID, &g.MACAddress, &g.Hostname, &g.IPAddress, &g.Name,
		&g.Description, &g.AccessToken, &g.Status, &lastHeartbeat, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get gateway by mac: %w", err)
	}
	if lastHeartbeat.Valid {
		g.LastHeartbeat = lastHeartbeat.Time
	}
	return &g, nil
}

// Upsert writes g, replacing any existing row for the same MAC address.
func (gs *GatewayStore) Upsert(g *gateway.Gateway) error {
	_, err := gs.db.Exec(`INSERT INTO gateways
		(id, mac_address, hostname, ip_address, name, description, access_token, status, last_heartbeat, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(mac_address) DO UPDATE SET
			id = excluded.id,
			hostname = excluded.hostname,
			ip_address = excluded.ip_address,
			name = excluded.name,
			description = excluded.description,
			access_token = excluded.access_token,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			updated_at = CURRENT_TIMESTAMP`,
		g.ID, g.MACAddress, g.Hostname, g.IPAddress, g.Name, g.Description,
		g.AccessToken, g.Status, g.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("failed to upsert gateway: %w", err)
	}
	return nil
}

// DeleteAll wipes every Gateway row, used on AuthDegraded to force a
// fresh bootstrap/provisioning cycle.
func (gs *GatewayStore) DeleteAll() error {
	if _, err := gs.db.Exec(`DELETE FROM gateways`); err != nil {
		return fmt.Errorf("failed to delete gateways: %w", err)
	}
	return nil
}
