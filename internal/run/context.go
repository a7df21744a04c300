package run

import (
	"sync"

	"github.com/phantomjam/engine/internal/model"
)

// Context holds the current run and the track kind in effect
type Context struct {
	mu        sync.RWMutex
	Run       *model.Run
	TrackKind string
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Run: &model.Run{},
	}
}

// GetRun returns the current run
func (rc *Context) GetRun() *model.Run {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.Run
}

// GetRunID returns the database ID of the current run, 0 before a run starts
func (rc *Context) GetRunID() uint {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.Run.ID
}

// GetTrackKind returns the track kind currently in effect
func (rc *Context) GetTrackKind() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.TrackKind
}

// SetRun sets the current run and its starting track kind
func (rc *Context) SetRun(r *model.Run, trackKind string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Run = r
	rc.TrackKind = trackKind
}

// SetTrackKind records a topology switch
func (rc *Context) SetTrackKind(kind string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.TrackKind = kind
}
