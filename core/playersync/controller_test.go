package playersync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned snapshot lists and signals every poll.
type fakeSource struct {
	mu        sync.Mutex
	snapshots []DeviceSnapshot
	err       error
	calls     int
	polled    chan struct{}
}

func newFakeSource(snapshots ...DeviceSnapshot) *fakeSource {
	return &fakeSource{snapshots: snapshots, polled: make(chan struct{}, 16)}
}

func (s *fakeSource) set(snapshots ...DeviceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = snapshots
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) Snapshots(ctx context.Context) ([]DeviceSnapshot, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	out := make([]DeviceSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	s.mu.Unlock()

	select {
	case s.polled <- struct{}{}:
	default:
	}

	if err != nil {
		return nil, err
	}
	return out, nil
}

// fakeSink records sent commands.
type fakeSink struct {
	mu    sync.Mutex
	sends []sentCommand
	err   error
}

type sentCommand struct {
	deviceID string
	cmd      Command
}

func (s *fakeSink) Send(ctx context.Context, deviceID string, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sends = append(s.sends, sentCommand{deviceID, cmd})
	return nil
}

func (s *fakeSink) sent() []sentCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentCommand, len(s.sends))
	copy(out, s.sends)
	return out
}

// recordingRenderer records every renderer call.
type recordingRenderer struct {
	mu       sync.Mutex
	rebuilds [][]DeviceSnapshot
	applies  []applyCall
	notices  []string
}

type applyCall struct {
	deviceID string
	fields   map[Field]interface{}
}

func (r *recordingRenderer) RebuildList(snapshots []DeviceSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]DeviceSnapshot, len(snapshots))
	copy(list, snapshots)
	r.rebuilds = append(r.rebuilds, list)
}

func (r *recordingRenderer) ApplyFields(deviceID string, fields map[Field]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[Field]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	r.applies = append(r.applies, applyCall{deviceID, copied})
}

func (r *recordingRenderer) Notify(deviceID string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, deviceID+": "+message)
}

func (r *recordingRenderer) rebuildCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rebuilds)
}

func (r *recordingRenderer) lastRebuild() []DeviceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rebuilds) == 0 {
		return nil
	}
	return r.rebuilds[len(r.rebuilds)-1]
}

func (r *recordingRenderer) appliedFields() []applyCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]applyCall, len(r.applies))
	copy(out, r.applies)
	return out
}

func (r *recordingRenderer) notifications() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	copy(out, r.notices)
	return out
}

func snap(id, name string, volume int, playing bool) DeviceSnapshot {
	return DeviceSnapshot{
		DeviceID: id,
		Name:     name,
		Online:   true,
		Playing:  playing,
		Volume:   volume,
	}
}

func newTestController(src StatusSource, sink CommandSink, renderer CardRenderer, clock clockwork.Clock) *Controller {
	return NewController(src, sink, renderer, Options{
		PollInterval: 5 * time.Second,
		Cooldown:     3 * time.Second,
		Clock:        clock,
	})
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll")
	}
}

func TestFirstPollRebuildsList(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false), snap("b", "Bedroom", 4, true))
	sink := &fakeSink{}
	renderer := &recordingRenderer{}
	c := newTestController(src, sink, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))

	require.Equal(t, 1, renderer.rebuildCount())
	list := renderer.lastRebuild()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].DeviceID)
	assert.Equal(t, "b", list[1].DeviceID)
	assert.Empty(t, renderer.appliedFields())
}

func TestUnchangedSetAppliesFieldDiffs(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{}
	renderer := &recordingRenderer{}
	c := newTestController(src, sink, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, 1, renderer.rebuildCount())

	src.set(snap("a", "Kitchen", 12, true))
	require.NoError(t, c.Poll(context.Background()))

	assert.Equal(t, 1, renderer.rebuildCount(), "unchanged set must not rebuild")
	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, "a", applies[0].deviceID)
	assert.Equal(t, map[Field]interface{}{FieldPlaying: true, FieldVolume: 12}, applies[0].fields)
}

func TestIdenticalSnapshotsApplyNothing(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	c := newTestController(src, &fakeSink{}, &recordingRenderer{}, clockwork.NewFakeClock())
	renderer := c.renderer.(*recordingRenderer)

	require.NoError(t, c.Poll(context.Background()))
	require.NoError(t, c.Poll(context.Background()))

	assert.Equal(t, 1, renderer.rebuildCount())
	assert.Empty(t, renderer.appliedFields())
}

func TestGateBlocksPollOverwrite(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clock)

	require.NoError(t, c.Poll(context.Background()))

	c.BeginInteraction("a", FieldVolume)
	assert.True(t, c.IsGated("a", FieldVolume))

	// Polls during the interaction must not touch the volume, however many
	// arrive.
	src.set(snap("a", "Kitchen", 2, false))
	require.NoError(t, c.Poll(context.Background()))
	require.NoError(t, c.Poll(context.Background()))
	assert.Empty(t, renderer.appliedFields())

	// Release: cooldown still protects the field.
	c.EndInteraction("a", FieldVolume)
	assert.True(t, c.IsGated("a", FieldVolume))
	require.NoError(t, c.Poll(context.Background()))
	assert.Empty(t, renderer.appliedFields())

	// After the cooldown expires the server value flows through again.
	clock.Advance(3*time.Second + time.Millisecond)
	assert.False(t, c.IsGated("a", FieldVolume))
	require.NoError(t, c.Poll(context.Background()))

	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, map[Field]interface{}{FieldVolume: 2}, applies[0].fields)
}

func TestGateOnlyProtectsItsOwnField(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clock)

	require.NoError(t, c.Poll(context.Background()))
	c.BeginInteraction("a", FieldVolume)

	src.set(snap("a", "Kitchen", 2, true))
	require.NoError(t, c.Poll(context.Background()))

	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, map[Field]interface{}{FieldPlaying: true}, applies[0].fields,
		"only the gated field is withheld")
}

func TestEndInteractionWithoutBeginIsNoop(t *testing.T) {
	c := newTestController(newFakeSource(), &fakeSink{}, &recordingRenderer{}, clockwork.NewFakeClock())

	c.EndInteraction("a", FieldVolume)
	assert.False(t, c.IsGated("a", FieldVolume))
}

func TestBeginInteractionIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTestController(newFakeSource(), &fakeSink{}, &recordingRenderer{}, clock)

	c.BeginInteraction("a", FieldVolume)
	c.BeginInteraction("a", FieldVolume)
	c.EndInteraction("a", FieldVolume)

	// A single End must start exactly one cooldown window.
	assert.True(t, c.IsGated("a", FieldVolume))
	clock.Advance(3*time.Second + time.Millisecond)
	assert.False(t, c.IsGated("a", FieldVolume))
}

func TestSetChangeRebuildsEvenWithIdenticalSurvivors(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false), snap("b", "Bedroom", 4, true))
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, 1, renderer.rebuildCount())

	// Same data for a, b removed: identifier set changed, so full rebuild.
	src.set(snap("a", "Kitchen", 8, false))
	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, 2, renderer.rebuildCount())
	assert.Len(t, renderer.lastRebuild(), 1)

	// New device appears: rebuild again.
	src.set(snap("a", "Kitchen", 8, false), snap("c", "Playroom", 6, false))
	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, 3, renderer.rebuildCount())
	assert.Len(t, renderer.lastRebuild(), 2)
}

func TestRebuildPreservesGatedFieldsOfSurvivors(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))
	c.BeginInteraction("a", FieldVolume)

	// Set change forces a rebuild while the volume gate is active.
	src.set(snap("a", "Kitchen", 2, false), snap("b", "Bedroom", 4, true))
	require.NoError(t, c.Poll(context.Background()))

	list := renderer.lastRebuild()
	require.Len(t, list, 2)
	assert.Equal(t, 8, list[0].Volume, "gated field keeps the local value across a rebuild")
	assert.Equal(t, 4, list[1].Volume)
}

func TestDeviceRemovalDropsItsGates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource(snap("a", "Kitchen", 8, false), snap("b", "Bedroom", 4, true))
	c := newTestController(src, &fakeSink{}, &recordingRenderer{}, clock)

	require.NoError(t, c.Poll(context.Background()))
	c.BeginInteraction("b", FieldVolume)

	src.set(snap("a", "Kitchen", 8, false))
	require.NoError(t, c.Poll(context.Background()))

	assert.False(t, c.IsGated("b", FieldVolume))
}

func TestPollFailureKeepsRenderedState(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, 1, renderer.rebuildCount())

	src.setErr(errors.New("backend unavailable"))
	err := c.Poll(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, renderer.rebuildCount())
	assert.Empty(t, renderer.appliedFields())

	// Recovery on the next successful poll.
	src.setErr(nil)
	src.set(snap("a", "Kitchen", 10, false))
	require.NoError(t, c.Poll(context.Background()))
	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, map[Field]interface{}{FieldVolume: 10}, applies[0].fields)
}

func TestSubmitCommandOptimisticUpdate(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{}
	renderer := &recordingRenderer{}
	c := newTestController(src, sink, renderer, clockwork.NewFakeClock())

	require.NoError(t, c.Poll(context.Background()))
	require.NoError(t, c.SubmitCommand(context.Background(), "a", FieldVolume, 12))

	// Rendered immediately, before any server confirmation.
	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, map[Field]interface{}{FieldVolume: 12}, applies[0].fields)

	sends := sink.sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "a", sends[0].deviceID)
	assert.Equal(t, ActionVolume, sends[0].cmd.Action)
	require.NotNil(t, sends[0].cmd.Volume)
	assert.Equal(t, 12, *sends[0].cmd.Volume)

	// A poll still carrying the stale value inside the cooldown window must
	// not clobber the optimistic update.
	require.NoError(t, c.Poll(context.Background()))
	assert.Len(t, renderer.appliedFields(), 1)
}

func TestSubmitCommandClampsVolume(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{}
	renderer := &recordingRenderer{}
	c := newTestController(src, sink, renderer, clockwork.NewFakeClock())
	require.NoError(t, c.Poll(context.Background()))

	require.NoError(t, c.SubmitCommand(context.Background(), "a", FieldVolume, 99))
	require.NoError(t, c.SubmitCommand(context.Background(), "a", FieldVolume, -3))

	sends := sink.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, 16, *sends[0].cmd.Volume)
	assert.Equal(t, 0, *sends[1].cmd.Volume)

	applies := renderer.appliedFields()
	require.Len(t, applies, 2)
	assert.Equal(t, 16, applies[0].fields[FieldVolume])
	assert.Equal(t, 0, applies[1].fields[FieldVolume])
}

func TestSubmitCommandPlayPauseMapping(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{}
	c := newTestController(src, sink, &recordingRenderer{}, clockwork.NewFakeClock())
	require.NoError(t, c.Poll(context.Background()))

	require.NoError(t, c.SubmitCommand(context.Background(), "a", FieldPlaying, true))
	require.NoError(t, c.SubmitCommand(context.Background(), "a", FieldPlaying, false))

	sends := sink.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, ActionPlay, sends[0].cmd.Action)
	assert.Equal(t, ActionPause, sends[1].cmd.Action)
}

func TestSubmitCommandRejectsNonControllableField(t *testing.T) {
	c := newTestController(newFakeSource(), &fakeSink{}, &recordingRenderer{}, clockwork.NewFakeClock())

	err := c.SubmitCommand(context.Background(), "a", FieldName, "x")
	require.Error(t, err)

	err = c.SubmitCommand(context.Background(), "a", FieldVolume, "loud")
	require.Error(t, err)
}

func TestSubmitCommandFailureNotifiesAndResyncs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{err: errors.New("device unreachable")}
	renderer := &recordingRenderer{}
	c := newTestController(src, sink, renderer, clock)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	waitSignal(t, src.polled)

	err := c.SubmitCommand(context.Background(), "a", FieldVolume, 12)
	require.Error(t, err)

	notices := renderer.notifications()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "a: ")
	assert.Contains(t, notices[0], "volume command failed")

	// The failure requests a corrective poll without waiting for the ticker.
	waitSignal(t, src.polled)
}

func TestPollSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	src := &blockingSource{release: release, entered: entered}
	c := newTestController(src, &fakeSink{}, &recordingRenderer{}, clockwork.NewFakeClock())

	go func() {
		_ = c.Poll(context.Background())
	}()
	<-entered

	err := c.Poll(context.Background())
	assert.ErrorIs(t, err, ErrPollInFlight)
	close(release)
}

type blockingSource struct {
	release <-chan struct{}
	entered chan<- struct{}
}

func (s *blockingSource) Snapshots(ctx context.Context) ([]DeviceSnapshot, error) {
	s.entered <- struct{}{}
	<-s.release
	return nil, nil
}

func TestProgrammaticChangeDoesNotEchoCommands(t *testing.T) {
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	sink := &fakeSink{}
	renderer := &echoingRenderer{}
	c := newTestController(src, sink, renderer, clockwork.NewFakeClock())
	renderer.controller = c

	require.NoError(t, c.Poll(context.Background()))

	// The reconcile updates the volume; the renderer's change callback fires
	// as if the user moved the slider, but the origin is programmatic.
	src.set(snap("a", "Kitchen", 12, false))
	require.NoError(t, c.Poll(context.Background()))

	assert.Empty(t, sink.sent(), "programmatic renderer updates must not become commands")
}

// echoingRenderer imitates a UI binding that reports every rendered change
// back through SubmitCommand.
type echoingRenderer struct {
	controller *Controller
}

func (r *echoingRenderer) RebuildList(snapshots []DeviceSnapshot) {}

func (r *echoingRenderer) ApplyFields(deviceID string, fields map[Field]interface{}) {
	for f, v := range fields {
		if f == FieldVolume || f == FieldPlaying {
			_ = r.controller.SubmitCommand(context.Background(), deviceID, f, v)
		}
	}
}

func (r *echoingRenderer) Notify(deviceID string, message string) {}

func TestStartPollsImmediatelyAndOnTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource(snap("a", "Kitchen", 8, false))
	c := newTestController(src, &fakeSink{}, &recordingRenderer{}, clock)

	require.NoError(t, c.Start(context.Background()))
	waitSignal(t, src.polled)

	// Wait for the loop to be parked on the ticker before advancing.
	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	waitSignal(t, src.polled)

	clock.Advance(5 * time.Second)
	waitSignal(t, src.polled)

	c.Stop()

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 3)
}

func TestStartTwiceFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := newFakeSource()
	c := newTestController(src, &fakeSink{}, &recordingRenderer{}, clock)

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
	c.Stop()

	// Restart after Stop is allowed.
	require.NoError(t, c.Start(context.Background()))
	c.Stop()
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	c := newTestController(newFakeSource(), &fakeSink{}, &recordingRenderer{}, clockwork.NewFakeClock())
	c.Stop()
}

func TestOptionalFieldTransitions(t *testing.T) {
	battery := 80
	card := "card-1"
	first := snap("a", "Kitchen", 8, false)
	first.BatteryLevel = &battery
	first.ActiveCard = &card

	src := newFakeSource(first)
	renderer := &recordingRenderer{}
	c := newTestController(src, &fakeSink{}, renderer, clockwork.NewFakeClock())
	require.NoError(t, c.Poll(context.Background()))

	// Optional fields disappearing must be rendered as "no data".
	src.set(snap("a", "Kitchen", 8, false))
	require.NoError(t, c.Poll(context.Background()))

	applies := renderer.appliedFields()
	require.Len(t, applies, 1)
	assert.Equal(t, map[Field]interface{}{FieldBattery: nil, FieldActiveCard: nil}, applies[0].fields)
}
