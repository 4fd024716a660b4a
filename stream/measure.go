package stream

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

type measureState struct {
	active   bool
	start    time.Time
	bytes    uint64
	loads    uint64
	failures uint64
}

// Measurement is the load throughput between BeginMeasure and EndMeasure.
type Measurement struct {
	Duration time.Duration
	Bytes    uint64
	Loads    uint64
	Failures uint64
}

// BytesPerSecond returns the average throughput.
func (m Measurement) BytesPerSecond() float64 {
	if m.Duration <= 0 {
		return 0
	}

	return float64(m.Bytes) / m.Duration.Seconds()
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s in %s (%s/s, %d loads, %d failures)",
		humanize.IBytes(m.Bytes),
		m.Duration.Round(time.Millisecond),
		humanize.IBytes(uint64(m.BytesPerSecond())),
		m.Loads,
		m.Failures,
	)
}

// BeginMeasure starts a throughput window. A running window restarts.
// It must not be called between Lock and Unlock.
func (p *Pool) BeginMeasure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.measure = measureState{
		active:   true,
		start:    time.Now(),
		bytes:    p.bytesLoaded,
		loads:    p.loads,
		failures: p.failures,
	}
}

// EndMeasure closes the window and logs the result. Without BeginMeasure the
// zero Measurement is returned.
func (p *Pool) EndMeasure() Measurement {
	p.mu.Lock()

	if !p.measure.active {
		p.mu.Unlock()
		return Measurement{}
	}

	m := Measurement{
		Duration: time.Since(p.measure.start),
		Bytes:    p.bytesLoaded - p.measure.bytes,
		Loads:    p.loads - p.measure.loads,
		Failures: p.failures - p.measure.failures,
	}
	p.measure = measureState{}

	p.mu.Unlock()

	p.logger.Info("stream throughput",
		"bytes", humanize.IBytes(m.Bytes),
		"duration", m.Duration,
		"rate", humanize.IBytes(uint64(m.BytesPerSecond()))+"/s",
		"loads", m.Loads,
		"failures", m.Failures,
	)

	return m
}
