// Package hostinfo surfaces the identifying facts a GatewayAgent needs
// about its own machine: MAC address, IP address, hostname, and the
// attached serial peripherals. Ported from the original source's
// utils.py (get_mac_address/get_ip_address/get_hostname), with MAC
// enumeration routed through gopsutil/v3/net instead of Python's uuid
// module, since the pack's HASHER repo already wires gopsutil for this
// kind of host enumeration.
package hostinfo

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// PortInfo describes one serial device visible to the host.
type PortInfo struct {
	Name string
	Path string
}

// MACAddress returns the canonical lowercase colon-separated MAC of the
// first non-loopback hardware-addressed interface.
func MACAddress() (string, error) {
	interfaces, err := gopsnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.HardwareAddr == "" {
			continue
		}
		if strings.Contains(strings.ToLower(iface.Flags[0]), "loopback") {
			continue
		}
		mac := strings.ToLower(iface.HardwareAddr)
		if mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}
	return "", fmt.Errorf("no hardware-addressed interface found")
}

// IPAddress returns the local address that would be used to reach a
// public host, via the dial-and-read-local-addr trick; falls back to
// 127.0.0.1 if no route is available.
func IPAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return localAddr.IP.String()
}

// Hostname returns the OS-reported hostname.
func Hostname() (string, error) {
	return os.Hostname()
}

// ScanPeripherals enumerates serial devices under /dev. No pack library
// lists serial ports directly (Daedaluz-goserial opens a named port but
// does not enumerate them), so this one operation is implemented
// against the standard library's os/filepath, justified in DESIGN.md.
func ScanPeripherals() ([]PortInfo, error) {
	var ports []PortInfo
	seen := map[string]bool{}

	globs := []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/serial/by-id/*"}
	for _, pattern := range globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			ports = append(ports, PortInfo{Name: filepath.Base(m), Path: m})
		}
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}
