// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phantomjam/engine/internal/logging"
	v1 "github.com/phantomjam/engine/internal/storage/memory/export/v1"
	"github.com/phantomjam/engine/pkg/core"
)

// exportJSON writes the run data to a replay archive.
// Callers must hold b.mu.
func (b *Backend) exportJSON() error {
	export := v1.Build(b.buildRunData())

	timestamp := logging.SessionStamp(b.run.StartTime)

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("run_%s_%s.json.gz", b.run.TrackKind, timestamp)
	} else {
		filename = fmt.Sprintf("run_%s_%s.json", b.run.TrackKind, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

// buildRunData collects the accumulated run into the builder's input.
// Callers must hold b.mu.
func (b *Backend) buildRunData() *v1.RunData {
	return &v1.RunData{
		Run:           b.run,
		Summary:       b.summary,
		Cars:          b.cars,
		Times:         b.times,
		Stats:         b.stats,
		BrakeEvents:   b.brakeEvents,
		ControlEvents: b.controlEvents,
		JamEvents:     b.jamEvents,
	}
}

func (b *Backend) writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// GetExportedFilePath returns the path of the last written archive, or the
// empty string before any export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the recorded run for the replay server upload.
// The stored summary wins for duration; before EndRun it is derived from the
// recorded tick span at the nominal tick rate.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.run == nil {
		return core.UploadMetadata{}
	}

	meta := core.UploadMetadata{
		SessionID: b.run.SessionID,
		TrackKind: b.run.TrackKind,
	}

	if b.summary != nil {
		meta.Duration = b.summary.Duration.Seconds()
	} else if b.run.TickRate > 0 {
		meta.Duration = float64(b.maxTick()) / float64(b.run.TickRate)
	}

	return meta
}

// maxTick scans the recorded samples for the highest tick seen.
// Callers must hold b.mu.
func (b *Backend) maxTick() uint {
	var max uint
	for _, record := range b.cars {
		for _, state := range record.States {
			if state.Tick > max {
				max = state.Tick
			}
		}
	}
	for _, s := range b.stats {
		if s.Tick > max {
			max = s.Tick
		}
	}
	return max
}
