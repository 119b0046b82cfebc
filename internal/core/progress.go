package core

import (
	"sync"
	"time"
)

// TickerFactory starts a ticker and returns its channel and a stop function.
type TickerFactory func(interval time.Duration) (<-chan time.Time, func())

func realTicker(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// ProgressTicker advances the local playback position between polls.
// At most one ticking goroutine exists at a time; it runs only while playing
// with a known duration.
type ProgressTicker struct {
	interval  time.Duration
	step      float64
	newTicker TickerFactory
	onAdvance func(position float64)

	mutex    sync.Mutex
	position float64
	duration float64
	playing  bool

	// lifecycle serializes goroutine start and stop.
	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressTicker creates a stopped ticker that adds one second per interval.
func NewProgressTicker(interval time.Duration) *ProgressTicker {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressTicker{
		interval:  interval,
		step:      1,
		newTicker: realTicker,
	}
}

// SetTickerFactory replaces the ticker source. It must be called before Update.
func (p *ProgressTicker) SetTickerFactory(factory TickerFactory) {
	p.newTicker = factory
}

// OnAdvance registers a callback invoked after every increment.
func (p *ProgressTicker) OnAdvance(fn func(position float64)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onAdvance = fn
}

// Update applies the latest playing flag and duration, restarting the
// goroutine only when either of them changed.
func (p *ProgressTicker) Update(isPlaying bool, duration float64) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mutex.Lock()
	unchanged := p.playing == isPlaying && p.duration == duration
	p.mutex.Unlock()
	if unchanged {
		return
	}

	p.stopLocked()

	p.mutex.Lock()
	p.playing = isPlaying
	p.duration = duration
	if duration > 0 && p.position > duration {
		p.position = duration
	}
	p.mutex.Unlock()

	if isPlaying && duration > 0 {
		p.startLocked()
	}
}

// Reset starts over for a new track: the duration is applied before the
// position is clamped, and any running goroutine is replaced.
func (p *ProgressTicker) Reset(isPlaying bool, position, duration float64) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.stopLocked()

	p.mutex.Lock()
	p.playing = isPlaying
	p.duration = duration
	p.position = p.clampUnsafe(position)
	p.mutex.Unlock()

	if isPlaying && duration > 0 {
		p.startLocked()
	}
}

// SetPosition overwrites the local position, clamped to [0, duration].
func (p *ProgressTicker) SetPosition(position float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.position = p.clampUnsafe(position)
}

// Position returns the local position in seconds.
func (p *ProgressTicker) Position() float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.position
}

// Duration returns the duration the ticker clamps against.
func (p *ProgressTicker) Duration() float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.duration
}

// Running reports whether a ticking goroutine is active.
func (p *ProgressTicker) Running() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.stop != nil
}

// Stop halts the goroutine and waits for it to exit.
func (p *ProgressTicker) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.stopLocked()
	p.mutex.Lock()
	p.playing = false
	p.mutex.Unlock()
}

// startLocked requires p.lifecycle.
func (p *ProgressTicker) startLocked() {
	ticks, stopTicker := p.newTicker(p.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done

	go p.run(ticks, stopTicker, stop, done)
}

// stopLocked requires p.lifecycle.
func (p *ProgressTicker) stopLocked() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
	p.done = nil
}

func (p *ProgressTicker) run(ticks <-chan time.Time, stopTicker func(), stop, done chan struct{}) {
	defer close(done)
	defer stopTicker()

	for {
		select {
		case <-stop:
			return
		case <-ticks:
			p.advance()
		}
	}
}

func (p *ProgressTicker) advance() {
	p.mutex.Lock()
	if p.duration <= 0 {
		p.mutex.Unlock()
		return
	}
	p.position = p.clampUnsafe(p.position + p.step)
	position := p.position
	callback := p.onAdvance
	p.mutex.Unlock()

	if callback != nil {
		callback(position)
	}
}

// clampUnsafe requires p.mutex.
func (p *ProgressTicker) clampUnsafe(position float64) float64 {
	if position < 0 {
		return 0
	}
	if p.duration > 0 && position > p.duration {
		return p.duration
	}
	return position
}
