// Package httpapi is the gateway's HTTP client for the backend's
// devices API: gateway lookup, registration, and heartbeat. Shaped
// after the teacher's azure/client package-level *http.Client with a
// tuned transport, pared down to this daemon's four endpoints.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/donghyeon/scaleledger-gateway/pkg/gateway"
)

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	},
}

// APIClient is the gateway's contract with the backend's devices API.
type APIClient interface {
	RetrieveGateway(ctx context.Context, mac string) (*gateway.Gateway, error)
	RetrieveGatewaySelf(ctx context.Context, token string) (*gateway.Gateway, error)
	RegisterGateway(ctx context.Context, mac, hostname, ip, name string) (*gateway.Gateway, error)
	SendHeartbeat(ctx context.Context, token string) error
}

// Client is the concrete net/http-based APIClient.
type Client struct {
	baseURL string
}

// New builds a Client against baseURL (e.g. "https://backend.example.com").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL}
}

// AuthError is returned for 401/403/404 responses on an authenticated
// call, the AuthDegraded trigger per spec.md §4.4.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("backend rejected credentials (HTTP %d)", e.StatusCode)
}

func (c *Client) RetrieveGateway(ctx context.Context, mac string) (*gateway.Gateway, error) {
	url := fmt.Sprintf("%s/devices/api/gateways/%s/", c.baseURL, mac)
	return c.getGateway(ctx, url, "")
}

func (c *Client) RetrieveGatewaySelf(ctx context.Context, token string) (*gateway.Gateway, error) {
	url := fmt.Sprintf("%s/devices/api/gateways/self/", c.baseURL)
	return c.getGateway(ctx, url, token)
}

func (c *Client) getGateway(ctx context.Context, url, token string) (*gateway.Gateway, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if isAuthFailure(resp.StatusCode) {
		return nil, &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d retrieving gateway", resp.StatusCode)
	}

	var g gatewayJSON
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return g.toGateway(), nil
}

func (c *Client) RegisterGateway(ctx context.Context, mac, hostname, ip, name string) (*gateway.Gateway, error) {
	body, err := json.Marshal(map[string]string{
		"mac_address": mac,
		"hostname":    hostname,
		"ip_address":  ip,
		"name":        name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration body: %w", err)
	}

	url := fmt.Sprintf("%s/devices/api/gateways/", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %d registering gateway", resp.StatusCode)
	}

	var g gatewayJSON
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return g.toGateway(), nil
}

func (c *Client) SendHeartbeat(ctx context.Context, token string) error {
	url := fmt.Sprintf("%s/devices/api/gateways/heartbeat/", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if isAuthFailure(resp.StatusCode) {
		return &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode/100 == 5 {
		return fmt.Errorf("backend returned status %d on heartbeat", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d on heartbeat", resp.StatusCode)
	}
	return nil
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

// gatewayJSON mirrors the backend's wire representation of a Gateway.
type gatewayJSON struct {
	ID          int64  `json:"id"`
	MACAddress  string `json:"mac_address"`
	Hostname    string `json:"hostname"`
	IPAddress   string `json:"ip_address"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AccessToken string `json:"access_token"`
	Status      string `json:"status"`
}

func (g *gatewayJSON) toGateway() *gateway.Gateway {
	return &gateway.Gateway{
		ID:          g.ID,
		MACAddress:  g.MACAddress,
		Hostname:    g.Hostname,
		IPAddress:   g.IPAddress,
		Name:        g.Name,
		Description: g.Description,
		AccessToken: g.AccessToken,
		Status:      g.Status,
	}
}
