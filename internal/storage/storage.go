// internal/storage/storage.go
package storage

import "github.com/phantomjam/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management (StartRun assigns the database ID to the passed pointer
	// on backends that have one)
	StartRun(r *core.Run) error
	EndRun(s *core.RunSummary) error

	// Car registration
	AddCar(c *core.CarRecord) error

	// Per-tick recording
	RecordFrame(f *core.Frame) error

	// Event recording
	RecordBrakeEvent(e *core.BrakeEvent) error
	RecordControlEvent(e *core.ControlEvent) error
	RecordJamEvent(e *core.JamEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a replay server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
