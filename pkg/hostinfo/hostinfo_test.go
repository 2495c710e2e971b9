package hostinfo

import (
	"os"
	"testing"
)

func TestIPAddress_NeverEmpty(t *testing.T) {
	ip := IPAddress()
	if ip == "" {
		t.Fatal("IPAddress() returned empty string")
	}
}

func TestHostname_MatchesOSHostname(t *testing.T) {
	got, err := Hostname()
	if err != nil {
		t.Fatalf("Hostname() error = %v", err)
	}
	if got == "" {
		t.Fatal("Hostname() returned empty string")
	}
	want, err := os.Hostname()
	if err != nil {
		t.Fatalf("os.Hostname() error = %v", err)
	}
	if got != want {
		t.Fatalf("Hostname() = %q, want %q", got, want)
	}
}

func TestScanPeripherals_NoErrorOnEmptyHost(t *testing.T) {
	ports, err := ScanPeripherals()
	if err != nil {
		t.Fatalf("ScanPeripherals() error = %v", err)
	}
	// ports may legitimately be empty in a container with no serial
	// devices attached; only the absence of an error is asserted.
	_ = ports
}
