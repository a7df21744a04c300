// Package websocket streams run data over WebSocket to a live viewer server.
// It implements storage.Backend but not storage.Uploadable.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phantomjam/engine/pkg/core"
	"github.com/phantomjam/engine/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams run data over WebSocket.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartRun sends the run header and waits for server ack.
func (b *Backend) StartRun(r *core.Run) error {
	data, err := marshalEnvelope(streaming.TypeStartRun, r)
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartRun, ackTimeout)
}

// EndRun sends the run summary and waits for server ack.
func (b *Backend) EndRun(s *core.RunSummary) error {
	err := b.sendEnvelopeAndWait(streaming.TypeEndRun, s)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) AddCar(c *core.CarRecord) error {
	return b.sendEnvelope(streaming.TypeAddCar, c)
}

func (b *Backend) RecordFrame(f *core.Frame) error {
	return b.sendEnvelope(streaming.TypeFrame, f)
}

func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	return b.sendEnvelope(streaming.TypeBrakeEvent, e)
}

func (b *Backend) RecordControlEvent(e *core.ControlEvent) error {
	return b.sendEnvelope(streaming.TypeControlEvent, e)
}

func (b *Backend) RecordJamEvent(e *core.JamEvent) error {
	return b.sendEnvelope(streaming.TypeJamEvent, e)
}
