// Command gatewaydiag is a field bring-up tool: open one serial port,
// send a single DISPLAY request, and print the decoded response.
// Ported from the original source's standalone test_connection.py,
// which the original authors clearly kept around for exactly this —
// checking a cable/indicator before trusting the full daemon to it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/donghyeon/scaleledger-gateway/pkg/serial"
	"github.com/donghyeon/scaleledger-gateway/pkg/suwol1000"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port to probe")
	deviceID := flag.Int("device", 0, "device id, 0-9")
	weight := flag.Int("weight", 412, "weight value to display during the probe")
	plate := flag.String("plate", "6575", "plate/RFID text to display during the probe")
	flag.Parse()

	fmt.Printf("Checking connection to %s...\n", *port)

	link, err := serial.Open(*port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serial port error: %v\n", err)
		os.Exit(1)
	}
	defer link.Close()
	fmt.Println("Serial port opened.")

	req := suwol1000.RequestPacket{
		DeviceID:      *deviceID,
		CommandCode:   suwol1000.CommandDisplay,
		DisplayWeight: *weight,
		DisplayPlate:  *plate,
		VoiceCode:     suwol1000.VoiceNone,
	}
	reqBytes := req.ToBytes()
	fmt.Printf("Sending request (%d bytes): %q\n", len(reqBytes), reqBytes)

	if err := link.Write(reqBytes); err != nil {
		fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		os.Exit(1)
	}

	raw, err := link.ReadFrame(suwol1000.ETX)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no response received: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Received response (%d bytes): %q\n", len(raw), raw)

	resp, err := suwol1000.FromBytes(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid packet structure: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Packet parsed successfully:")
	fmt.Printf("  Device ID      : %d\n", resp.DeviceID)
	fmt.Printf("  Current Weight : %d kg\n", resp.CurrentWeight)
	fmt.Printf("  Weight Stable  : %t\n", resp.IsWeightStable)
	fmt.Printf("  RFID Card UID  : %s\n", resp.RFIDCardUID)
	fmt.Printf("  User Input     : %q (command %v)\n", resp.UserInput, resp.UserCommandCode)
	fmt.Printf("  Fan=%t Heater=%t Printer=%v\n", resp.FanOn, resp.HeaterOn, resp.PrinterStatus)
	fmt.Printf("  Inner Temp     : %d C\n", resp.InnerTemperature)
}
