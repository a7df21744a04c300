// Package dispatcher routes control commands to their handlers. Commands
// arrive from the operator console, scripted run schedules and remote
// streaming peers, and are identified by colon-delimited names such as
// ":PAUSE:TOGGLE:".
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event is a single control command aimed at the running simulation.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc executes a command and returns its result.
type HandlerFunc func(Event) (any, error)

// Logger receives dispatch diagnostics as structured key/value pairs.
// *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option adjusts how a handler is registered.
type Option func(*handlerConfig)

type handlerConfig struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of the
// given size. Dispatch returns as soon as the command is queued.
func Buffered(size int) Option {
	return func(c *handlerConfig) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler wait for queue space instead of
// dropping the command.
func Blocking() Option {
	return func(c *handlerConfig) {
		c.blocking = true
	}
}

// Logged records timing and outcome for every invocation of the handler.
func Logged() Option {
	return func(c *handlerConfig) {
		c.logged = true
	}
}

// Dispatcher holds the command table and the instruments that observe it.
type Dispatcher struct {
	hmu      sync.RWMutex
	handlers map[string]HandlerFunc

	logger Logger

	queueDepth metric.Int64ObservableGauge
	processed  metric.Int64Counter
	dropped    metric.Int64Counter

	// buffers is read by the gauge callback, so it gets its own lock.
	mu      sync.RWMutex
	buffers map[string]chan Event
}

// New creates an empty Dispatcher. Metrics come from the global OTel
// meter provider, which is a no-op unless telemetry was configured.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueDepth, err = m.Int64ObservableGauge(
		"dispatcher.queue.depth",
		metric.WithDescription("Commands waiting in buffered handler queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue depth gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for cmd, buf := range d.buffers {
				o.ObserveInt64(d.queueDepth, int64(len(buf)),
					metric.WithAttributes(attribute.String("command", cmd)))
			}
			return nil
		},
		d.queueDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.commands.processed",
		metric.WithDescription("Commands handled to completion"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.commands.dropped",
		metric.WithDescription("Commands discarded because a handler queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register binds a handler to a command name, replacing any previous
// binding. Options wrap the handler from the inside out, so a handler
// that is both Buffered and Logged logs the enqueue, not the execution.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &handlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.wrapBuffered(command, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.wrapLogged(command, handler)
	}

	d.hmu.Lock()
	d.handlers[command] = handler
	d.hmu.Unlock()
}

// Dispatch looks up the command and runs its handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.hmu.RLock()
	h, ok := d.handlers[e.Command]
	d.hmu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	return h(e)
}

// HasHandler reports whether a handler is bound to the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

func (d *Dispatcher) wrapBuffered(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	go func() {
		for e := range buffer {
			h(e)
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	if blocking {
		return func(e Event) (any, error) {
			buffer <- e
			return "queued", nil
		}
	}

	return func(e Event) (any, error) {
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func (d *Dispatcher) wrapLogged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("command failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command handled", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
