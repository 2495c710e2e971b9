// Package gateway holds the Gateway record: the backend's view of this
// field computer, cached locally and refreshed by a GatewayAgent.
package gateway

import "time"

// Gateway is the persisted identity of one gateway, keyed by MAC
// address. The worker never reads or mutates it; only a GatewayAgent
// does, via pkg/store.
type Gateway struct {
	ID            int64
	MACAddress    string
	Hostname      string
	IPAddress     string
	Name          string
	Description   string
	AccessToken   string
	Status        string
	LastHeartbeat time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Provisioned reports whether this record carries a usable access
// token.
func (g *Gateway) Provisioned() bool {
	return g != nil && g.AccessToken != ""
}
