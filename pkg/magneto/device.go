// Package magneto reads 2-axis magnetometer samples from the sensor firmware
// over a serial line, or simulates them.
package magneto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate used by the firmware.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 256

	resetCommand = "r\n"
	resetToken   = "reset"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the sensor MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	samples   chan RawSample
	done      chan struct{}
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		samples:  make(chan RawSample, bufSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("device %s was closed", d.port)
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true
	log.Info().Str("port", d.port).Int("baud", d.baudRate).Msg("serial connected")

	go d.readSamples(port)

	return nil
}

// Close closes the connection. The samples channel is closed once the reader
// goroutine has exited.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Warn().Err(err).Str("port", d.port).Msg("error closing serial port")
	}
	d.conn = nil
	d.connected = false
	d.mu.Unlock()

	<-d.done
	log.Info().Str("port", d.port).Msg("serial closed")
	return nil
}

// Samples returns the channel for reading samples.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// Reset sends the soft reset command to the firmware.
func (d *Serial) Reset() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := io.WriteString(d.conn, resetCommand); err != nil {
		return fmt.Errorf("failed to send reset command: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from r until it fails or the device is closed.
func (d *Serial) readSamples(r io.Reader) {
	defer close(d.done)
	defer close(d.samples)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("serial reader panicked")
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if d.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			log.Warn().Err(err).Str("line", line).Msg("failed to parse line")
			continue
		}

		if sample.Reset {
			// the meter must see every reset, wait for room
			select {
			case d.samples <- sample:
			case <-d.ctx.Done():
				return
			}
			continue
		}

		select {
		case d.samples <- sample:
		case <-d.ctx.Done():
			return
		default:
			log.Warn().Msg("samples channel full, dropping sample")
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && d.ctx.Err() == nil {
		log.Error().Err(err).Str("port", d.port).Msg("error reading from serial port")
	}
}

// parseLine parses a line from the MCU into a RawSample.
//
//	micros,x,y,state   e.g. 1234567890,-312,877,0
//	micros,reset       sensor was re-initialised
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 && len(parts) != 4 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 2 or 4 comma-separated values, got %d", len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	timestamp := time.UnixMicro(micros)

	if len(parts) == 2 {
		if parts[1] != resetToken {
			return RawSample{}, fmt.Errorf("unknown notice %q", parts[1])
		}
		return ResetNotice(timestamp), nil
	}

	x, err := strconv.ParseInt(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid x: %w", err)
	}
	y, err := strconv.ParseInt(parts[2], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid y: %w", err)
	}
	state, err := ParseState(parts[3])
	if err != nil {
		return RawSample{}, err
	}

	return RawSample{
		Timestamp: timestamp,
		X:         int16(x),
		Y:         int16(y),
		State:     state,
	}, nil
}
