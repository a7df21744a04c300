package dispatcher

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// captureLogger collects dispatch diagnostics for assertions.
type captureLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *captureLogger) Debug(msg string, keysAndValues ...any) {
	l.record("DEBUG", msg, keysAndValues)
}

func (l *captureLogger) Info(msg string, keysAndValues ...any) {
	l.record("INFO", msg, keysAndValues)
}

func (l *captureLogger) Error(msg string, keysAndValues ...any) {
	l.record("ERROR", msg, keysAndValues)
}

func (l *captureLogger) record(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *captureLogger) {
	t.Helper()
	logger := &captureLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":STATS:", func(e Event) (any, error) {
		got = e
		return "avg_speed=11.2", nil
	})

	result, err := d.Dispatch(Event{Command: ":STATS:", Args: []string{"json"}})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "avg_speed=11.2" {
		t.Errorf("expected handler result, got %v", result)
	}
	if len(got.Args) != 1 || got.Args[0] != "json" {
		t.Errorf("handler saw wrong args: %v", got.Args)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":NO:SUCH:"})

	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestDispatcher_RegisterReplacesBinding(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":RESET:", func(e Event) (any, error) { return "old", nil })
	d.Register(":RESET:", func(e Event) (any, error) { return "new", nil })

	result, err := d.Dispatch(Event{Command: ":RESET:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "new" {
		t.Errorf("expected the later binding to win, got %v", result)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(":BRAKE:RANDOM:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":BRAKE:RANDOM:"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Stall the handler so the queue fills up.
	block := make(chan struct{})
	d.Register(":SNAPSHOT:", func(e Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(2))

	d.Dispatch(Event{Command: ":SNAPSHOT:"}) // being processed
	d.Dispatch(Event{Command: ":SNAPSHOT:"}) // queued
	d.Dispatch(Event{Command: ":SNAPSHOT:"}) // queued

	_, err := d.Dispatch(Event{Command: ":SNAPSHOT:"})

	if err == nil {
		t.Error("expected error when queue is full")
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	d.Register(":PAUSE:SET:", func(e Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":PAUSE:SET:"}) // being processed
	d.Dispatch(Event{Command: ":PAUSE:SET:"}) // fills the queue

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":PAUSE:SET:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Blocked as intended.
	}

	close(block)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":PAUSE:TOGGLE:", func(e Event) (any, error) {
		return "paused", nil
	}, Logged())

	d.Dispatch(Event{Command: ":PAUSE:TOGGLE:", Args: []string{"console"}})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected enter and complete messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":TRACK:SWITCH:", func(e Event) (any, error) {
		return nil, fmt.Errorf("switch refused")
	}, Logged())

	d.Dispatch(Event{Command: ":TRACK:SWITCH:"})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected an error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":RESET:", func(e Event) (any, error) { return nil, nil })

	if !d.HasHandler(":RESET:") {
		t.Error("expected handler to exist")
	}

	if d.HasHandler(":SELF:DESTRUCT:") {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_ConcurrentDispatch(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var hits atomic.Int32
	d.Register(":STATS:", func(e Event) (any, error) {
		hits.Add(1)
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%5 == 0 {
				d.Register(fmt.Sprintf(":EXTRA:%d:", n), func(e Event) (any, error) { return nil, nil })
			}
			d.Dispatch(Event{Command: ":STATS:"})
		}(i)
	}
	wg.Wait()

	if hits.Load() != 20 {
		t.Errorf("expected 20 dispatches, got %d", hits.Load())
	}
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register(":BRAKE:RANDOM:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: ":BRAKE:RANDOM:"})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "queued" {
		t.Errorf("expected 'queued', got %v", result)
	}

	wg.Wait()

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected log messages, got %d", len(logger.messages))
	}
}
