package main

import (
	"fmt"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a single-line progress message with the elapsed
// (or, in countdown mode, remaining) seconds. Single-use: Start once, Stop
// once; Stop is safe to call multiple times.
type ProgressPrinter struct {
	prefix   string
	duration time.Duration // > 0 enables countdown mode

	mu      sync.Mutex
	phase   string
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressPrinter creates a count-up progress printer.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	return &ProgressPrinter{prefix: prefix, phase: phase}
}

// NewCountdownProgressPrinter creates a printer counting down from duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{prefix: prefix, phase: phase, duration: duration}
}

// Start begins printing updates in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.started = time.Now()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.print()

	go p.loop(p.stop, p.done)
}

func (p *ProgressPrinter) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.print()
			p.mu.Unlock()
		}
	}
}

// print writes the current progress line. Caller holds p.mu (or is Start).
func (p *ProgressPrinter) print() {
	seconds := int(time.Since(p.started).Seconds())
	if p.duration > 0 {
		remaining := p.duration - time.Since(p.started)
		if remaining < 0 {
			remaining = 0
		}
		seconds = int(remaining.Seconds() + 0.5)
	}
	fmt.Printf("\r%s (%s %ds)   ", p.prefix, p.phase, seconds)
}

// SetPhase updates the phase label shown on the progress line.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// Callback adapts SetPhase to the scanner's progress callback signature.
func (p *ProgressPrinter) Callback() func(phase string) {
	return p.SetPhase
}

// Stop stops the progress display and clears the line.
func (p *ProgressPrinter) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Print(clearLineSequence)
}
