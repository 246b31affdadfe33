// Package live runs the long-lived stream engine: one tick loop per
// stream, an exclusively-owned rolling window, and fan-out to
// subscribers that can never stall the loop.
package live

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/engine/anomaly"
	"github.com/driftwatch/driftwatch/internal/engine/series"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

// Event is one reading pushed to every subscriber, flagged or not.
type Event struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	IsAnomaly bool    `json:"is_anomaly"`
	Severity  *string `json:"severity"`
}

// State of the stream engine lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Source produces one reading per tick.
type Source interface {
	Next(now time.Time) float64
}

// Config carries the stream engine knobs.
type Config struct {
	Interval         time.Duration   `yaml:"interval"`
	WindowCapacity   int             `yaml:"window_capacity"`
	SubscriberBuffer int             `yaml:"subscriber_buffer"`
	Anomaly          anomaly.Options `yaml:"anomaly"`
}

// DefaultConfig returns the standard stream policy.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Second,
		WindowCapacity:   180,
		SubscriberBuffer: 16,
		Anomaly:          anomaly.DefaultOptions(),
	}
}

// UnmarshalYAML accepts duration strings ("250ms", "2s") for the tick
// interval, which yaml.v2 does not do for time.Duration on its own.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		Interval         string          `yaml:"interval"`
		WindowCapacity   int             `yaml:"window_capacity"`
		SubscriberBuffer int             `yaml:"subscriber_buffer"`
		Anomaly          anomaly.Options `yaml:"anomaly"`
	}
	r := raw{
		Interval:         c.Interval.String(),
		WindowCapacity:   c.WindowCapacity,
		SubscriberBuffer: c.SubscriberBuffer,
		Anomaly:          c.Anomaly,
	}
	if err := unmarshal(&r); err != nil {
		return err
	}
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return fmt.Errorf("invalid stream interval %q: %w", r.Interval, err)
	}
	c.Interval = d
	c.WindowCapacity = r.WindowCapacity
	c.SubscriberBuffer = r.SubscriberBuffer
	c.Anomaly = r.Anomaly
	return nil
}

// Engine owns one stream: its window, its tick loop, its subscribers.
// The window is mutated only by the tick loop; subscribers see readings
// through emitted events, never the window itself.
type Engine struct {
	cfg Config
	src Source
	met *metrics.Registry

	mu      sync.Mutex
	state   State
	subs    map[uint64]chan Event
	nextSub uint64

	window *series.RollingWindow
	seq    int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEngine builds an idle stream engine over the given source.
func NewEngine(cfg Config, src Source, met *metrics.Registry) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig().WindowCapacity
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	if met == nil {
		met = metrics.Default()
	}
	return &Engine{
		cfg:  cfg,
		src:  src,
		met:  met,
		subs: make(map[uint64]chan Event),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start allocates the rolling window and launches the tick loop. Only
// an idle engine can start.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fmt.Errorf("stream engine is %s, cannot start", e.state)
	}
	e.window = series.NewRollingWindow(e.cfg.WindowCapacity)
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.state = StateRunning
	go e.run()
	log.Info().Dur("interval", e.cfg.Interval).Int("window", e.cfg.WindowCapacity).Msg("live stream started")
	return nil
}

// Stop halts the tick loop. Idempotent; no tick fires after it returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.state = StateStopped
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.met.StreamSubscribers.Set(0)
	e.mu.Unlock()
	log.Info().Msg("live stream stopped")
}

// Subscribe attaches a new event channel. Subscribers receive every
// event emitted from this moment forward; there is no replay. The
// returned cancel func detaches and closes the channel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, e.cfg.SubscriberBuffer)
	if e.state == StateStopped {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.met.StreamSubscribers.Set(float64(len(e.subs)))
	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
			e.met.StreamSubscribers.Set(float64(len(e.subs)))
		}
	}
	return ch, cancel
}

func (e *Engine) run() {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			select {
			case <-e.stopCh:
				return
			default:
			}
			e.tick(now)
		}
	}
}

// tick produces one reading, updates the window, runs the streaming
// detector, and fans the event out.
func (e *Engine) tick(now time.Time) {
	obs := series.Observation{
		Timestamp: now.UTC(),
		HasTime:   true,
		Index:     e.seq,
		Value:     e.src.Next(now),
	}
	e.seq++

	flagged := anomaly.Observe(e.window, obs, e.cfg.Anomaly)

	ev := Event{
		Timestamp: obs.TimeLabel(),
		Value:     obs.Value,
	}
	if flagged != nil {
		ev.IsAnomaly = true
		sev := string(flagged.Severity)
		ev.Severity = &sev
		log.Debug().Float64("value", obs.Value).Float64("score", flagged.Score).
			Str("severity", sev).Msg("stream anomaly")
	}
	e.met.StreamEvents.WithLabelValues(fmt.Sprintf("%t", ev.IsAnomaly)).Inc()

	e.broadcast(ev)
}

// broadcast delivers the event to every subscriber without blocking.
// A subscriber whose buffer is full is dropped rather than allowed to
// stall tick production.
func (e *Engine) broadcast(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			delete(e.subs, id)
			close(ch)
			e.met.StreamDropped.Inc()
			log.Warn().Uint64("subscriber", id).Msg("dropped slow stream subscriber")
		}
	}
	e.met.StreamSubscribers.Set(float64(len(e.subs)))
}
