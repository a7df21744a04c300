package control

import (
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/detect"
	"github.com/phantomjam/engine/internal/dispatcher"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/recorder"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/sim"
	"github.com/phantomjam/engine/internal/track"
	"github.com/phantomjam/engine/pkg/core"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	cars     []core.CarRecord
	frames   []core.Frame
	brakes   []core.BrakeEvent
	controls []core.ControlEvent
	jams     []core.JamEvent
}

func (b *mockBackend) Init() error                     { return nil }
func (b *mockBackend) Close() error                    { return nil }
func (b *mockBackend) StartRun(r *core.Run) error      { return nil }
func (b *mockBackend) EndRun(s *core.RunSummary) error { return nil }

func (b *mockBackend) AddCar(c *core.CarRecord) error {
	b.cars = append(b.cars, *c)
	return nil
}

func (b *mockBackend) RecordFrame(f *core.Frame) error {
	b.frames = append(b.frames, *f)
	return nil
}

func (b *mockBackend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.brakes = append(b.brakes, *e)
	return nil
}

func (b *mockBackend) RecordControlEvent(e *core.ControlEvent) error {
	b.controls = append(b.controls, *e)
	return nil
}

func (b *mockBackend) RecordJamEvent(e *core.JamEvent) error {
	b.jams = append(b.jams, *e)
	return nil
}

// failingBackend rejects every control event write.
type failingBackend struct {
	mockBackend
}

func (b *failingBackend) RecordControlEvent(e *core.ControlEvent) error {
	return errors.New("disk full")
}

// testEnv wires a control service to an in-memory backend and a real driver.
type testEnv struct {
	svc      *Service
	backend  *mockBackend
	driver   *sim.Simulation
	recorder *recorder.Service
	stats    *cache.StatsCache
	runCtx   *run.Context
	detector *detect.Detector
	d        *dispatcher.Dispatcher
}

func newTestEnv(t *testing.T, params sim.Params) *testEnv {
	t.Helper()

	backend := &mockBackend{}
	logManager := logging.NewSlogManager()
	stats := cache.NewStatsCache()

	runCtx := run.NewContext()
	runCtx.SetRun(&model.Run{Model: gorm.Model{ID: 1}, SessionID: "test"}, "circular")

	driver := sim.New(track.Circular, params, rand.New(rand.NewSource(7)))

	// Thresholds small enough to establish a baseline within a few feeds.
	detector := detect.New(detect.Config{
		BaselineTicks: 5,
		WindowTicks:   5,
		DropRatio:     0.6,
		MinBaseline:   1.0,
		StableTicks:   2,
		MinCars:       2,
	}, params.CarCount)

	rec := recorder.NewService(recorder.Dependencies{
		Backend:    backend,
		LogManager: logManager,
		RunContext: runCtx,
		StatsCache: stats,
		Detector:   detector,
	})

	svc := NewService(Dependencies{
		Driver:     driver,
		DriverLock: &sync.Mutex{},
		LogManager: logManager,
		RunContext: runCtx,
		Recorder:   rec,
		StatsCache: stats,
		Detector:   detector,
	}, backend)

	d, err := dispatcher.New(logManager.Logger())
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	svc.RegisterHandlers(d)

	return &testEnv{
		svc:      svc,
		backend:  backend,
		driver:   driver,
		recorder: rec,
		stats:    stats,
		runCtx:   runCtx,
		detector: detector,
		d:        d,
	}
}

// feedBaseline pushes enough steady samples to establish a detector baseline.
func feedBaseline(d *detect.Detector) {
	for tick := 1; tick <= 5; tick++ {
		d.Feed(tick, []detect.Sample{
			{Slot: 0, CarID: 100, Displacement: 2.0},
			{Slot: 1, CarID: 101, Displacement: 2.0},
		})
	}
}

func TestRegisterHandlers_RegistersAllCommands(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	expectedCommands := []string{
		":PAUSE:TOGGLE:",
		":PAUSE:SET:",
		":RESET:",
		":TRACK:SWITCH:",
		":TIMESCALE:ADJUST:",
		":BRAKE:RANDOM:",
		":STATS:",
		":SNAPSHOT:",
	}

	for _, cmd := range expectedCommands {
		if !env.d.HasHandler(cmd) {
			t.Errorf("expected handler for %s to be registered", cmd)
		}
	}
}

func TestPauseToggle_RecordsControlEvent(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:TOGGLE:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paused, ok := result.(bool); !ok || !paused {
		t.Errorf("expected true result, got %v", result)
	}
	if !env.driver.Paused() {
		t.Error("expected driver to be paused")
	}

	if len(env.backend.controls) != 1 {
		t.Fatalf("expected 1 control event, got %d", len(env.backend.controls))
	}
	ev := env.backend.controls[0]
	if ev.Action != "pause" || ev.Value != "true" {
		t.Errorf("expected pause/true event, got %s/%s", ev.Action, ev.Value)
	}
	if ev.RunID != 1 {
		t.Errorf("expected run ID 1, got %d", ev.RunID)
	}

	result, err = env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:TOGGLE:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paused, ok := result.(bool); !ok || paused {
		t.Errorf("expected false result, got %v", result)
	}
	if env.driver.Paused() {
		t.Error("expected driver to be resumed")
	}
	if len(env.backend.controls) != 2 || env.backend.controls[1].Value != "false" {
		t.Errorf("expected second pause event with value false, got %+v", env.backend.controls)
	}
}

func TestPauseSet_ParsesArgument(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:SET:", Args: []string{"true"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.driver.Paused() {
		t.Error("expected driver to be paused")
	}

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:SET:", Args: []string{"false"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.driver.Paused() {
		t.Error("expected driver to be resumed")
	}
}

func TestPauseSet_RejectsBadArgument(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:SET:"}); err == nil {
		t.Error("expected error for missing argument")
	}
	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:SET:", Args: []string{"sideways"}}); err == nil {
		t.Error("expected error for unparsable argument")
	}
	if len(env.backend.controls) != 0 {
		t.Errorf("expected no control events, got %d", len(env.backend.controls))
	}
}

func TestReset_RestoresDefaultsAndReregisters(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:TOGGLE:"})
	env.d.Dispatch(dispatcher.Event{Command: ":TIMESCALE:ADJUST:", Args: []string{"0.5"}})
	env.stats.Set(3, core.TrafficStats{AvgSpeed: 1.2})

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":RESET:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}

	if env.driver.Paused() {
		t.Error("expected reset to clear pause")
	}
	if env.driver.TimeScale() != 1.0 {
		t.Errorf("expected time scale 1.0, got %v", env.driver.TimeScale())
	}
	if _, _, ok := env.stats.Get(); ok {
		t.Error("expected stats cache to be cleared")
	}

	if got := len(env.backend.cars); got != sim.DefaultParams().CarCount {
		t.Errorf("expected %d re-registered cars, got %d", sim.DefaultParams().CarCount, got)
	}

	last := env.backend.controls[len(env.backend.controls)-1]
	if last.Action != "reset" {
		t.Errorf("expected last control event reset, got %s", last.Action)
	}
}

func TestTrackSwitch_RespawnsOnNewTopology(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":TRACK:SWITCH:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "linear" {
		t.Errorf("expected linear result, got %v", result)
	}
	if env.driver.Kind() != track.Linear {
		t.Errorf("expected linear driver, got %v", env.driver.Kind())
	}
	if env.runCtx.GetTrackKind() != "linear" {
		t.Errorf("expected run context linear, got %s", env.runCtx.GetTrackKind())
	}

	if len(env.backend.controls) != 1 {
		t.Fatalf("expected 1 control event, got %d", len(env.backend.controls))
	}
	ev := env.backend.controls[0]
	if ev.Action != "track_switch" || ev.Value != "linear" {
		t.Errorf("expected track_switch/linear event, got %s/%s", ev.Action, ev.Value)
	}
	if got := len(env.backend.cars); got != sim.DefaultParams().CarCount {
		t.Errorf("expected %d re-registered cars, got %d", sim.DefaultParams().CarCount, got)
	}

	result, err = env.d.Dispatch(dispatcher.Event{Command: ":TRACK:SWITCH:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "circular" {
		t.Errorf("expected circular result, got %v", result)
	}
}

func TestRespawnClearsDetectorBaseline(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	feedBaseline(env.detector)
	if _, err := env.detector.Baseline(); err != nil {
		t.Fatalf("expected established baseline, got %v", err)
	}

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":TRACK:SWITCH:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.detector.Baseline(); !errors.Is(err, detect.ErrNoBaseline) {
		t.Errorf("expected baseline cleared after switch, got %v", err)
	}

	feedBaseline(env.detector)
	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":RESET:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.detector.Baseline(); !errors.Is(err, detect.ErrNoBaseline) {
		t.Errorf("expected baseline cleared after reset, got %v", err)
	}
}

func TestTimeScaleAdjust_ClampsAndRecords(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":TIMESCALE:ADJUST:", Args: []string{"0.5"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 1.5 {
		t.Errorf("expected 1.5, got %v", result)
	}
	if env.backend.controls[0].Action != "timescale" || env.backend.controls[0].Value != "1.5" {
		t.Errorf("expected timescale/1.5 event, got %+v", env.backend.controls[0])
	}

	result, err = env.d.Dispatch(dispatcher.Event{Command: ":TIMESCALE:ADJUST:", Args: []string{"-5.0"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 0.1 {
		t.Errorf("expected clamp to 0.1, got %v", result)
	}
	if env.backend.controls[1].Value != "0.1" {
		t.Errorf("expected clamped value 0.1, got %s", env.backend.controls[1].Value)
	}

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":TIMESCALE:ADJUST:", Args: []string{"fast"}}); err == nil {
		t.Error("expected error for unparsable delta")
	}
}

func TestBrakeRandom_ReturnsChosenCar(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":BRAKE:RANDOM:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := result.(string)
	if !ok {
		t.Fatalf("expected string result, got %T", result)
	}
	id, convErr := strconv.Atoi(s)
	if convErr != nil {
		t.Fatalf("expected a car id result, got %q", s)
	}

	starts := env.driver.DrainBrakeStarts()
	if len(starts) != 1 {
		t.Fatalf("expected 1 brake onset, got %d", len(starts))
	}
	if starts[0].ID != id || starts[0].Trigger != core.TriggerManual {
		t.Errorf("expected manual onset for car %d, got %+v", id, starts[0])
	}

	// The onset rides the tick drain; the control path must not record it.
	if len(env.backend.controls) != 0 {
		t.Errorf("expected no control events, got %d", len(env.backend.controls))
	}
	if len(env.backend.brakes) != 0 {
		t.Errorf("expected no direct brake writes, got %d", len(env.backend.brakes))
	}
}

func TestBrakeRandom_NoneEligible(t *testing.T) {
	params := sim.DefaultParams()
	params.CarCount = 2
	env := newTestEnv(t, params)

	for i := 0; i < 2; i++ {
		if _, err := env.d.Dispatch(dispatcher.Event{Command: ":BRAKE:RANDOM:"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":BRAKE:RANDOM:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "none eligible" {
		t.Errorf("expected none eligible, got %v", result)
	}
}

func TestStats_ServesCachedMeasurement(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":STATS:"}); err == nil {
		t.Error("expected error before any measurement")
	}

	want := core.TrafficStats{AvgSpeed: 1.2, FlowPct: 60, NumBraking: 3, Congested: true}
	env.stats.Set(9, want)

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":STATS:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != want {
		t.Errorf("expected %+v, got %+v", want, result)
	}
}

func TestSnapshot_ReturnsDriverState(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	result, err := env.d.Dispatch(dispatcher.Event{Command: ":SNAPSHOT:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, ok := result.(sim.Snapshot)
	if !ok {
		t.Fatalf("expected snapshot result, got %T", result)
	}
	if len(snap.Cars) != sim.DefaultParams().CarCount {
		t.Errorf("expected %d cars, got %d", sim.DefaultParams().CarCount, len(snap.Cars))
	}
	if snap.Kind != track.Circular {
		t.Errorf("expected circular snapshot, got %v", snap.Kind)
	}
}

func TestControlEvents_StampedWithFrameCount(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())

	for i := 0; i < 3; i++ {
		env.driver.Tick()
		env.recorder.Capture(env.driver.Snapshot(), env.driver.DrainBrakeStarts())
	}

	if _, err := env.d.Dispatch(dispatcher.Event{Command: ":PAUSE:TOGGLE:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := env.backend.controls[0].Tick; got != 3 {
		t.Errorf("expected control event at frame 3, got %d", got)
	}
}

func TestControlWriteFailure_DoesNotFailCommand(t *testing.T) {
	env := newTestEnv(t, sim.DefaultParams())
	svc := NewService(env.svc.deps, &failingBackend{})

	result, err := svc.handlePauseToggle(dispatcher.Event{Command: ":PAUSE:TOGGLE:"})
	if err != nil {
		t.Fatalf("expected command to succeed despite write failure, got %v", err)
	}
	if paused, ok := result.(bool); !ok || !paused {
		t.Errorf("expected true result, got %v", result)
	}
}
