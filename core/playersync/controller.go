package playersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/earchibald/yoto-smart-stream-sub004/logger"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultPollInterval is how often the status endpoint is polled.
	DefaultPollInterval = 5 * time.Second

	// DefaultCooldown is how long a released control stays protected from
	// poll overwrites. It must cover one full round trip: command to the
	// backend, backend to the device, and the device's next status report
	// arriving on a later poll.
	DefaultCooldown = 3 * time.Second

	// maxVolume is the device volume range upper bound.
	maxVolume = 16
)

// ErrPollInFlight is returned when a poll is requested while a previous one
// is still running. The caller simply waits for the next tick.
var ErrPollInFlight = errors.New("poll already in flight")

// Control actions accepted by the backend.
const (
	ActionPlay   = "play"
	ActionPause  = "pause"
	ActionStop   = "stop"
	ActionVolume = "volume"
)

// Options tunes a Controller. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	Cooldown     time.Duration
	Clock        clockwork.Clock
}

// Controller keeps a rendered list of device cards consistent with
// server-reported state while never discarding in-flight user input.
//
// All card and gate state is owned by one controller instance and mutated
// under a single mutex: gate checks happen at write time, so a reconcile
// whose fetch completed before a BeginInteraction call still sees the gate
// when it tries to write.
type Controller struct {
	src      StatusSource
	sink     CommandSink
	renderer CardRenderer
	clock    clockwork.Clock

	pollInterval time.Duration
	cooldown     time.Duration

	mu       sync.Mutex
	cards    map[string]*DeviceSnapshot // last rendered state per device
	gates    map[gateKey]*gate
	inFlight bool

	// programmatic marks fields whose renderer update originated from a
	// reconcile or optimistic apply, so a renderer change callback does not
	// echo it back as a command. Guarded separately from mu because the
	// check happens re-entrantly from inside ApplyFields.
	pmu          sync.Mutex
	programmatic map[gateKey]bool

	nudge chan struct{}

	runMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewController creates a Controller. The renderer receives already
// gate-filtered data and is never called concurrently.
func NewController(src StatusSource, sink CommandSink, renderer CardRenderer, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Controller{
		src:          src,
		sink:         sink,
		renderer:     renderer,
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		cooldown:     opts.Cooldown,
		cards:        make(map[string]*DeviceSnapshot),
		gates:        make(map[gateKey]*gate),
		programmatic: make(map[gateKey]bool),
		nudge:        make(chan struct{}, 1),
	}
}

// Start launches the repeating poll loop. It polls once immediately and
// then on every tick until Stop is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.started {
		return fmt.Errorf("controller already started")
	}
	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(ctx)
	return nil
}

// Stop cancels the poll loop and waits for it to exit. Safe to call when
// not started.
func (c *Controller) Stop() {
	c.runMu.Lock()
	if !c.started {
		c.runMu.Unlock()
		return
	}
	c.started = false
	stop, done := c.stop, c.done
	c.runMu.Unlock()

	close(stop)
	<-done
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	c.pollAndLog(ctx)

	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
		case <-c.nudge:
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
		c.pollAndLog(ctx)
	}
}

func (c *Controller) pollAndLog(ctx context.Context) {
	if err := c.Poll(ctx); err != nil && !errors.Is(err, ErrPollInFlight) {
		// Transient failure: keep the rendered state untouched and let the
		// next tick retry.
		logger.Warn("status poll failed", logger.ErrorField(err))
	}
}

// Poll fetches the snapshot list and reconciles it into the rendered state.
// It refuses to run concurrently with itself; an overlapping call returns
// ErrPollInFlight without touching anything.
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrPollInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	snapshots, err := c.src.Snapshots(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}

	c.Reconcile(snapshots)
	return nil
}

// Reconcile merges a fresh snapshot list into the rendered state. A changed
// device-identifier set triggers a full list rebuild; an unchanged set is
// applied as per-field diffs that skip gated fields.
func (c *Controller) Reconcile(snapshots []DeviceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.dropExpiredGates(now)

	if c.setChanged(snapshots) {
		c.rebuild(snapshots, now)
		return
	}

	for i := range snapshots {
		c.applyDiff(&snapshots[i], now)
	}
}

// BeginInteraction marks a control as actively manipulated. Idempotent.
func (c *Controller) BeginInteraction(deviceID string, field Field) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := gateKey{deviceID, field}
	if g, ok := c.gates[key]; ok && g.state == gateActive {
		return
	}
	c.gates[key] = &gate{state: gateActive}
}

// EndInteraction releases a control, starting its cooldown window.
func (c *Controller) EndInteraction(deviceID string, field Field) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := gateKey{deviceID, field}
	g, ok := c.gates[key]
	if !ok || g.state != gateActive {
		return
	}
	g.state = gateCooldown
	g.until = c.clock.Now().Add(c.cooldown)
}

// IsGated reports whether a field is currently protected from poll
// overwrites.
func (c *Controller) IsGated(deviceID string, field Field) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.gates[gateKey{deviceID, field}]
	return ok && g.blocked(c.clock.Now())
}

// SubmitCommand issues a control change, reflecting the value optimistically
// in the rendered UI before the backend confirms. Changes that originated
// from a reconcile apply are short-circuited to avoid a feedback cycle. On
// failure the user is notified and a corrective poll is requested so the
// display resyncs with ground truth.
func (c *Controller) SubmitCommand(ctx context.Context, deviceID string, field Field, value interface{}) error {
	if c.isProgrammatic(deviceID, field) {
		return nil
	}

	cmd, err := commandFor(field, value)
	if err != nil {
		return err
	}
	if field == FieldVolume {
		value = *cmd.Volume // render the clamped value
	}

	key := gateKey{deviceID, field}

	c.mu.Lock()
	// Arm the gate so in-flight and subsequent reconciles cannot clobber
	// the optimistic value before the device round trip completes. An
	// active gate (user still holding the control) is left as is.
	if g, ok := c.gates[key]; !ok || g.state != gateActive {
		c.gates[key] = &gate{state: gateCooldown, until: c.clock.Now().Add(c.cooldown)}
	}
	if card, ok := c.cards[deviceID]; ok {
		card.setFieldValue(field, value)
	}
	c.setProgrammatic(key)
	c.renderer.ApplyFields(deviceID, map[Field]interface{}{field: value})
	c.clearProgrammatic(key)
	c.mu.Unlock()

	if err := c.sink.Send(ctx, deviceID, cmd); err != nil {
		c.renderer.Notify(deviceID, fmt.Sprintf("%s command failed: %v", cmd.Action, err))
		c.requestPoll()
		return fmt.Errorf("submit %s command: %w", cmd.Action, err)
	}
	return nil
}

// requestPoll asks the run loop for an immediate poll. No-op when one is
// already pending or the loop is not running.
func (c *Controller) requestPoll() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// setChanged reports whether the incoming identifier set differs from the
// currently rendered one. Callers hold c.mu.
func (c *Controller) setChanged(snapshots []DeviceSnapshot) bool {
	if len(snapshots) != len(c.cards) {
		return true
	}
	for i := range snapshots {
		if _, ok := c.cards[snapshots[i].DeviceID]; !ok {
			return true
		}
	}
	return false
}

// rebuild replaces the whole card list. Surviving devices keep their gated
// field values so the gate invariant holds across rebuilds. Callers hold
// c.mu.
func (c *Controller) rebuild(snapshots []DeviceSnapshot, now time.Time) {
	newCards := make(map[string]*DeviceSnapshot, len(snapshots))
	display := make([]DeviceSnapshot, 0, len(snapshots))

	for _, snap := range snapshots {
		s := snap
		if prev, ok := c.cards[s.DeviceID]; ok {
			for _, f := range allFields {
				if g, ok := c.gates[gateKey{s.DeviceID, f}]; ok && g.blocked(now) {
					s.setFieldValue(f, prev.fieldValue(f))
				}
			}
		}
		newCards[s.DeviceID] = &s
		display = append(display, s)
	}

	// Gates and suppression flags of removed devices go with them.
	for key := range c.gates {
		if _, ok := newCards[key.deviceID]; !ok {
			delete(c.gates, key)
		}
	}
	c.pmu.Lock()
	for key := range c.programmatic {
		if _, ok := newCards[key.deviceID]; !ok {
			delete(c.programmatic, key)
		}
	}
	c.pmu.Unlock()

	c.cards = newCards
	c.renderer.RebuildList(display)
}

// applyDiff applies the changed, non-gated fields of one snapshot to the
// matching card. Callers hold c.mu.
func (c *Controller) applyDiff(next *DeviceSnapshot, now time.Time) {
	prev, ok := c.cards[next.DeviceID]
	if !ok {
		return
	}

	changed := make(map[Field]interface{})
	for _, f := range diffFields(prev, next) {
		if g, ok := c.gates[gateKey{next.DeviceID, f}]; ok && g.blocked(now) {
			continue
		}
		changed[f] = next.fieldValue(f)
	}
	if len(changed) == 0 {
		return
	}

	for f, v := range changed {
		prev.setFieldValue(f, v)
		c.setProgrammatic(gateKey{next.DeviceID, f})
	}
	prev.UpdatedAt = next.UpdatedAt
	c.renderer.ApplyFields(next.DeviceID, changed)
	for f := range changed {
		c.clearProgrammatic(gateKey{next.DeviceID, f})
	}
}

// dropExpiredGates prunes cooldown gates whose deadline passed. Callers
// hold c.mu.
func (c *Controller) dropExpiredGates(now time.Time) {
	for key, g := range c.gates {
		if g.expired(now) {
			delete(c.gates, key)
		}
	}
}

func (c *Controller) isProgrammatic(deviceID string, field Field) bool {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return c.programmatic[gateKey{deviceID, field}]
}

func (c *Controller) setProgrammatic(key gateKey) {
	c.pmu.Lock()
	c.programmatic[key] = true
	c.pmu.Unlock()
}

func (c *Controller) clearProgrammatic(key gateKey) {
	c.pmu.Lock()
	delete(c.programmatic, key)
	c.pmu.Unlock()
}

// commandFor maps a controllable field change to a backend command.
func commandFor(field Field, value interface{}) (Command, error) {
	switch field {
	case FieldVolume:
		v, ok := value.(int)
		if !ok {
			return Command{}, fmt.Errorf("volume value must be an int, got %T", value)
		}
		if v < 0 {
			v = 0
		}
		if v > maxVolume {
			v = maxVolume
		}
		return Command{Action: ActionVolume, Volume: &v}, nil
	case FieldPlaying:
		v, ok := value.(bool)
		if !ok {
			return Command{}, fmt.Errorf("playing value must be a bool, got %T", value)
		}
		if v {
			return Command{Action: ActionPlay}, nil
		}
		return Command{Action: ActionPause}, nil
	}
	return Command{}, fmt.Errorf("field %q is not controllable", field)
}
