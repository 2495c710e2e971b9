package wsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConn_SendAndReceive(t *testing.T) {
	_, wsURL := newEchoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, wsURL)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()

	type frame struct {
		Type string `json:"type"`
	}
	if err := conn.Send(frame{Type: "identify"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-conn.Messages():
		if !strings.Contains(string(got), `"identify"`) {
			t.Fatalf("Messages() = %s, want it to contain identify", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestConn_MessagesClosesOnServerClose(t *testing.T) {
	// httptest.Server.Close does not close upgraded (hijacked)
	// connections, so the handler closes its socket itself on signal.
	upgrader := websocket.Upgrader{}
	closeServer := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-closeServer
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, wsURL)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()

	close(closeServer)

	select {
	case _, ok := <-conn.Messages():
		if ok {
			t.Fatal("expected Messages() channel to close, got a value instead")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Messages() to close")
	}
}
