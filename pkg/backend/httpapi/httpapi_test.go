package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_RetrieveGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices/api/gateways/aa:bb:cc:dd:ee:ff/" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(gatewayJSON{
			ID:         7,
			MACAddress: "aa:bb:cc:dd:ee:ff",
			Hostname:   "scale-01",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	g, err := c.RetrieveGateway(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("RetrieveGateway() error = %v", err)
	}
	if g.ID != 7 || g.Hostname != "scale-01" {
		t.Fatalf("RetrieveGateway() = %+v", g)
	}
}

func TestClient_RetrieveGatewaySelf_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.RetrieveGatewaySelf(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("expected an error")
	}
	authErr, ok := err.(*AuthError)
	if !ok {
		t.Fatalf("error type = %T, want *AuthError", err)
	}
	if authErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want %d", authErr.StatusCode, http.StatusForbidden)
	}
}

func TestClient_RegisterGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["mac_address"] != "aa:bb:cc:dd:ee:ff" {
			t.Fatalf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(gatewayJSON{ID: 1, MACAddress: body["mac_address"]})
	}))
	defer srv.Close()

	c := New(srv.URL)
	g, err := c.RegisterGateway(context.Background(), "aa:bb:cc:dd:ee:ff", "host", "10.0.0.1", "dock")
	if err != nil {
		t.Fatalf("RegisterGateway() error = %v", err)
	}
	if g.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("RegisterGateway() = %+v", g)
	}
}

func TestClient_SendHeartbeat_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SendHeartbeat(context.Background(), "tok")
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("error type = %T, want *AuthError", err)
	}
}

func TestClient_SendHeartbeat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SendHeartbeat(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected a transient error for a 5xx response")
	}
	if _, ok := err.(*AuthError); ok {
		t.Fatal("a 5xx must not be classified as an AuthError")
	}
}

func TestClient_SendHeartbeat_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.SendHeartbeat(context.Background(), "tok"); err != nil {
		t.Fatalf("SendHeartbeat() error = %v", err)
	}
}
