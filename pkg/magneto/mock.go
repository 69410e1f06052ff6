package magneto

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/itohio/wmr/pkg/config"
	"github.com/itohio/wmr/pkg/ellipse"
	"github.com/itohio/wmr/pkg/geometry"
	"github.com/rs/zerolog/log"
)

// Trace simulates the field seen by a magnetometer next to a rotating meter
// indicator: an ellipse traversed clockwise at the configured flow rate.
type Trace struct {
	shape    ellipse.Cartesian
	noise    float64
	flowRate float64
	glitch   float64
	phase    float64
	rng      *rand.Rand
}

// NewTrace creates a deterministic trace for the given seed.
func NewTrace(cfg *config.MockConfig, seed uint64) *Trace {
	return &Trace{
		shape: ellipse.NewCartesian(
			geometry.Coordinate{X: cfg.CenterX, Y: cfg.CenterY},
			geometry.Coordinate{X: cfg.RadiusX, Y: cfg.RadiusY},
			geometry.FromDegrees(cfg.Tilt),
		),
		noise:    cfg.Noise,
		flowRate: cfg.FlowRate,
		glitch:   cfg.GlitchRate,
		phase:    math.Pi / 2,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Revolutions returns how far the indicator has turned so far.
func (t *Trace) Revolutions() float64 {
	return (math.Pi/2 - t.phase) / (2 * math.Pi)
}

// Shape returns the simulated ellipse.
func (t *Trace) Shape() ellipse.Cartesian {
	return t.shape
}

// Next advances the indicator by dt and returns the reading.
func (t *Trace) Next(dt time.Duration) (int16, int16, State) {
	t.phase -= 2 * math.Pi * t.flowRate * dt.Seconds()

	if t.glitch > 0 && t.rng.Float64() < t.glitch {
		return 0, 0, ReadError
	}

	p := t.shape.PointAtAngle(geometry.NewAngle(t.phase))
	x := quantize(p.X + t.jitter())
	y := quantize(p.Y + t.jitter())
	return x, y, Ok
}

func (t *Trace) jitter() float64 {
	if t.noise == 0 {
		return 0
	}
	return (2*t.rng.Float64() - 1) * t.noise
}

func quantize(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Mock simulates a sensor device for testing and development.
type Mock struct {
	cfg *config.MockConfig

	samples   chan RawSample
	done      chan struct{}
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	trace        *Trace
	pendingReset bool
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:     cfg,
		samples: make(chan RawSample, DefaultBufferSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		trace:   NewTrace(cfg, uint64(time.Now().UnixNano())),
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("mock device was closed")
	}

	m.connected = true
	log.Info().Float64("flow_rate", m.cfg.FlowRate).Msg("mock sensor connected")

	go m.generateSamples()

	return nil
}

// Close stops the mocked device and closes the samples channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.mu.Unlock()

	<-m.done
	return nil
}

// Samples returns the channel for reading samples.
func (m *Mock) Samples() <-chan RawSample {
	return m.samples
}

// Reset queues a reset notice as the next sample.
func (m *Mock) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.pendingReset = true
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// generateSamples emits one sample per tick until the device is closed.
func (m *Mock) generateSamples() {
	defer close(m.done)
	defer close(m.samples)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			sample := m.generateSample(now)
			select {
			case m.samples <- sample:
			case <-m.ctx.Done():
				return
			default:
				// Channel full, skip
			}
		}
	}
}

func (m *Mock) generateSample(now time.Time) RawSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingReset {
		m.pendingReset = false
		return ResetNotice(now)
	}

	x, y, state := m.trace.Next(m.cfg.SampleRate)
	return RawSample{
		Timestamp: now,
		X:         x,
		Y:         y,
		State:     state,
	}
}
