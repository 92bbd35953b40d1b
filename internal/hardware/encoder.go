package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/atomic"

	"robot-service/internal/config"
	"robot-service/internal/drive"
	"robot-service/internal/logger"
)

// quadrature[prev<<2|cur] is the count change for an A/B level transition.
// Invalid double transitions count as zero.
var quadrature = [16]int64{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Encoder decodes a quadrature encoder from both edges of its A and B lines.
type Encoder struct {
	mu      sync.Mutex
	offA    int
	offB    int
	state   uint8 // A<<1 | B
	swapped bool
	count   atomic.Int64
	lines   []*gpiocdev.Line
}

func newEncoder(offA, offB int) *Encoder {
	return &Encoder{offA: offA, offB: offB}
}

// OpenEncoder requests both lines with edge events. A and B must be on the
// same chip.
func OpenEncoder(cfg config.EncoderConfig) (*Encoder, error) {
	if cfg.A.Chip != cfg.B.Chip {
		return nil, fmt.Errorf("encoder lines on different chips: %s, %s", cfg.A.Chip, cfg.B.Chip)
	}
	e := newEncoder(cfg.A.Offset, cfg.B.Offset)
	for _, off := range []int{cfg.A.Offset, cfg.B.Offset} {
		line, err := gpiocdev.RequestLine(cfg.A.Chip, off,
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithConsumer(Consumer),
			gpiocdev.WithEventHandler(e.handle))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to request encoder line %s:%d: %w", cfg.A.Chip, off, err)
		}
		e.lines = append(e.lines, line)
	}

	var levels [2]bool
	for i, line := range e.lines {
		v, err := line.Value()
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to read encoder line %s:%d: %w", cfg.A.Chip, line.Offset(), err)
		}
		levels[i] = v != 0
	}
	e.seed(levels[0], levels[1])
	return e, nil
}

// seed sets the current A/B levels so the first edge decodes against the
// real position rather than 00.
func (e *Encoder) seed(a, b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = 0
	if a {
		e.state |= 2
	}
	if b {
		e.state |= 1
	}
}

func (e *Encoder) handle(evt gpiocdev.LineEvent) {
	e.update(evt.Offset, evt.Type == gpiocdev.LineEventRisingEdge)
}

// update applies one edge on the line at offset.
func (e *Encoder) update(offset int, high bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state
	var bit uint8
	switch offset {
	case e.offA:
		bit = 2
	case e.offB:
		bit = 1
	default:
		return
	}
	if high {
		next |= bit
	} else {
		next &^= bit
	}

	delta := quadrature[e.state<<2|next]
	if e.swapped {
		delta = -delta
	}
	e.state = next
	e.count.Add(delta)
}

// SwapPins treats A as B and B as A, which reverses the count direction.
func (e *Encoder) SwapPins(swap bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swapped = swap
}

func (e *Encoder) Count() int64 { return e.count.Load() }

func (e *Encoder) Close() {
	for _, l := range e.lines {
		l.Close()
	}
	e.lines = nil
}

// Encoders pairs the wheel encoders for the hardware adaptation step.
type Encoders struct {
	Left   *Encoder
	Right  *Encoder
	logger *logger.Logger
}

func NewEncoders(left, right *Encoder, l *logger.Logger) *Encoders {
	return &Encoders{Left: left, Right: right, logger: l}
}

func (e *Encoders) SwapPins(m drive.Motor, swap bool) error {
	enc := e.Left
	if m == drive.MotorRight {
		enc = e.Right
	}
	if enc == nil {
		return fmt.Errorf("no %s encoder", m)
	}
	enc.SwapPins(swap)
	e.logger.Infof("Encoder %s pins swapped=%v", m, swap)
	return nil
}
