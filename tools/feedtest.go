package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"sealink/config"
	"sealink/format"
	"sealink/link"
	"sealink/serial"
	"sealink/simul"
	"sealink/telemetry"

	// Import format packages for side-effect registration
	_ "sealink/format/dht"
	_ "sealink/format/generic"
	_ "sealink/format/imu"
)

// feedtest exercises a serial link from the board's side of the cable:
// feed emits synthetic telemetry lines, watch classifies whatever
// arrives, loopback checks a jumpered port.
func main() {
	mode := flag.String("mode", "feed", "Mode: feed, watch, or loopback")
	device := flag.String("device", "/dev/ttyUSB0", "Serial device")
	baud := flag.Int("baud", 115200, "Baud rate")
	kind := flag.String("kind", "mixed", "Telemetry to emit: dht, imu, or mixed")
	rate := flag.Float64("rate", 2.0, "Lines per second in feed mode")
	count := flag.Int("count", 0, "Lines to emit in feed mode (0 = until interrupted)")
	flag.Parse()

	cfg := serial.PortConfig{
		Device:      *device,
		BaudRate:    *baud,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		ReadTimeout: time.Second,
	}

	switch *mode {
	case "feed":
		feedTest(cfg, *kind, *rate, *count)
	case "watch":
		watchTest(cfg)
	case "loopback":
		loopbackTest(cfg)
	default:
		log.Fatal("Invalid mode. Use: feed, watch, or loopback")
	}
}

func feedTest(cfg serial.PortConfig, kind string, rate float64, count int) {
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer port.Close()

	src, err := simul.NewSource(&config.SimulationConfig{
		Mode:           kind,
		LinesPerSecond: rate,
		JitterPercent:  10,
	})
	if err != nil {
		log.Fatalf("Failed to create source: %v", err)
	}
	defer src.Close()

	fmt.Printf("Feeding %s telemetry on %s at %d baud\n", kind, cfg.Device, cfg.BaudRate)
	if count > 0 {
		fmt.Printf("Rate: %.1f lines/s, stopping after %d lines\n\n", rate, count)
	} else {
		fmt.Printf("Rate: %.1f lines/s, press Ctrl+C to stop\n\n", rate)
	}

	buf := make([]byte, 256)
	sent := 0
	for count == 0 || sent < count {
		n, err := src.Read(buf)
		if err != nil {
			log.Fatalf("Source error: %v", err)
		}
		if _, err := port.Write(buf[:n]); err != nil {
			log.Printf("Write error: %v", err)
			continue
		}
		sent++
		fmt.Printf("[%d] %s\n", sent, strings.TrimRight(string(buf[:n]), "\r\n"))
	}
	fmt.Println("\nFeed complete")
}

func watchTest(cfg serial.PortConfig) {
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer port.Close()

	fmt.Printf("Watching %s at %d baud\n", cfg.Device, cfg.BaudRate)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	desc := telemetry.PortDescriptor{Device: cfg.Device}
	reader := link.NewReader(1024)
	buf := make([]byte, 1024)

	for {
		n, err := port.Read(buf)
		if err != nil {
			log.Printf("Read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		for _, frame := range reader.Push(buf[:n]) {
			printFrame(frame, desc)
		}
	}
}

func printFrame(frame telemetry.RawFrame, desc telemetry.PortDescriptor) {
	stamp := frame.Time.Format("15:04:05.000")
	sample, err := format.Classify(frame, desc)
	if err != nil {
		fmt.Printf("[%s] ?        %q (%v)\n", stamp, frame.Text, err)
		return
	}
	switch sample.Kind {
	case telemetry.KindDHT:
		fmt.Printf("[%s] dht      temp=%.1fC hum=%.1f%%\n",
			stamp, sample.DHT.TemperatureC, sample.DHT.Humidity)
	case telemetry.KindIMU:
		fmt.Printf("[%s] imu      yaw=%.1f pitch=%.1f roll=%.1f\n",
			stamp, sample.IMU.Yaw, sample.IMU.Pitch, sample.IMU.Roll)
	case telemetry.KindGeneric:
		pairs := make([]string, 0, len(sample.Generic.Keys))
		for _, k := range sample.Generic.Keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, sample.Generic.Values[k].String()))
		}
		fmt.Printf("[%s] generic  %s\n", stamp, strings.Join(pairs, " "))
	}
}

func loopbackTest(cfg serial.PortConfig) {
	port, err := serial.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer port.Close()

	fmt.Printf("Loopback test on %s at %d baud\n", cfg.Device, cfg.BaudRate)
	fmt.Println("Connect TX and RX with a jumper")
	fmt.Println()

	for i := 0; i < 5; i++ {
		testMsg := fmt.Sprintf("TEMP:%.1f HUM:%.1f", 20.0+float64(i), 50.0+float64(i))
		fmt.Printf("Sending: %s\n", testMsg)

		if _, err := port.Write([]byte(testMsg + "\r\n")); err != nil {
			log.Printf("Write error: %v", err)
			continue
		}

		// Try to receive with timeout
		time.Sleep(100 * time.Millisecond)
		buf := make([]byte, 256)
		n, err := port.Read(buf)
		if err != nil {
			fmt.Printf("  ✗ No data received (error: %v)\n", err)
		} else if n > 0 {
			received := strings.TrimRight(string(buf[:n]), "\r\n")
			if received == testMsg {
				fmt.Printf("  ✓ Loopback OK: %s\n", received)
			} else {
				fmt.Printf("  ? Received different: %q\n", received)
			}
		} else {
			fmt.Printf("  ✗ No data received (timeout)\n")
		}

		time.Sleep(1 * time.Second)
	}
}
