package lookup

import (
	"context"
	"errors"
	"sync"
	"time"

	"lingo/internal/logging"
)

// DefaultDismissDelay is the grace period between leaving a word and the
// popover closing.
const DefaultDismissDelay = 200 * time.Millisecond

var ErrNoActiveWord = errors.New("no word is open")

// Anchor is where the hovered word sits on screen.
type Anchor struct {
	X, Y int
}

// Popover is an immutable view of the lookup popover.
type Popover struct {
	Version        uint64
	Open           bool
	Word           string
	Anchor         Anchor
	Definition     *Definition
	Loading        bool
	Err            error // lookup failure, shown inline
	Favorite       bool
	Toggling       bool
	Hovered        bool // pointer is on the popover
	DismissPending bool
}

// WordService is what the controller needs from the lookup adapter.
type WordService interface {
	Define(ctx context.Context, word string) (Definition, error)
	IsFavorite(ctx context.Context, word string) (bool, error)
	SetFavorite(ctx context.Context, word string, def *Definition, favorite bool) error
}

type stopper interface {
	Stop() bool
}

// ControllerOptions tunes a Controller.
type ControllerOptions struct {
	DismissDelay time.Duration
	CallTimeout  time.Duration

	afterFunc func(time.Duration, func()) stopper
}

// Controller owns the hover popover: the active word, its lookup result,
// the favorite flag and the single dismissal timer.
type Controller struct {
	svc   WordService
	delay time.Duration
	calls time.Duration

	afterFunc func(time.Duration, func()) stopper

	mu         sync.Mutex
	pop        Popover
	favTouched bool   // user toggled since open; the initial check must not override it
	epoch      uint64 // bumped on every open and close
	timer      stopper
	timerToken uint64
	onChange   func(Popover)

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(svc WordService, opts ControllerOptions) *Controller {
	if opts.DismissDelay <= 0 {
		opts.DismissDelay = DefaultDismissDelay
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.afterFunc == nil {
		opts.afterFunc = func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		svc:       svc,
		delay:     opts.DismissDelay,
		calls:     opts.CallTimeout,
		afterFunc: opts.afterFunc,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnChange sets the change handler. It runs outside the controller lock.
func (c *Controller) OnChange(handler func(Popover)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = handler
}

// Snapshot returns the current popover.
func (c *Controller) Snapshot() Popover {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pop
}

// notifyChange must be called with c.mu held; it releases the lock.
func (c *Controller) notifyChange() {
	c.pop.Version++
	handler := c.onChange
	snap := c.pop
	c.mu.Unlock()

	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("lookup change handler panicked", "panic", r)
		}
	}()
	handler(snap)
}

// HoverEnter opens the popover for word at anchor and starts the definition
// lookup and favorite check. Hovering the already open word only moves it.
func (c *Controller) HoverEnter(word string, anchor Anchor) {
	c.mu.Lock()
	c.cancelTimerLocked()

	word = CleanWord(word)
	if word == "" {
		if c.pop.Open {
			c.notifyChange()
			return
		}
		c.mu.Unlock()
		return
	}

	if c.pop.Open && c.pop.Word == word {
		c.pop.Anchor = anchor
		c.notifyChange()
		return
	}

	c.epoch++
	token := c.epoch
	c.favTouched = false
	c.pop = Popover{
		Version: c.pop.Version,
		Open:    true,
		Word:    word,
		Anchor:  anchor,
		Loading: true,
	}

	c.wg.Add(2)
	go c.define(token, word)
	go c.checkFavorite(token, word)

	c.notifyChange()
}

// HoverLeave arms the dismissal timer.
func (c *Controller) HoverLeave() {
	c.mu.Lock()
	if !c.pop.Open {
		c.mu.Unlock()
		return
	}
	c.armTimerLocked()
	c.notifyChange()
}

// PopoverEnter keeps the popover open while the pointer is on it.
func (c *Controller) PopoverEnter() {
	c.mu.Lock()
	if !c.pop.Open {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	c.pop.Hovered = true
	c.notifyChange()
}

// PopoverLeave arms the dismissal timer again.
func (c *Controller) PopoverLeave() {
	c.mu.Lock()
	if !c.pop.Open {
		c.mu.Unlock()
		return
	}
	c.pop.Hovered = false
	c.armTimerLocked()
	c.notifyChange()
}

// ToggleFavorite flips the favorite flag right away and persists it. On
// failure the previous value is restored and the error returned; there is no
// retry.
func (c *Controller) ToggleFavorite(ctx context.Context) error {
	c.mu.Lock()
	if !c.pop.Open {
		c.mu.Unlock()
		return ErrNoActiveWord
	}
	if c.pop.Toggling {
		c.mu.Unlock()
		return nil
	}
	token := c.epoch
	word := c.pop.Word
	def := c.pop.Definition
	prev := c.pop.Favorite
	c.pop.Favorite = !prev
	c.pop.Toggling = true
	c.favTouched = true
	c.notifyChange()

	callCtx, cancel := c.callContext(ctx)
	err := c.svc.SetFavorite(callCtx, word, def, !prev)
	cancel()

	c.mu.Lock()
	if token != c.epoch || c.pop.Word != word {
		c.mu.Unlock()
		return err
	}
	c.pop.Toggling = false
	if err != nil {
		c.pop.Favorite = prev
		logging.Warn("favorite toggle failed", "word", word, "error", err)
	}
	c.notifyChange()
	return err
}

// Clear closes the popover immediately. Results still in flight are dropped.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.cancelTimerLocked()
	if !c.pop.Open {
		c.mu.Unlock()
		return
	}
	c.closeLocked()
	c.notifyChange()
}

// Close clears the popover, cancels lookups and waits for them to return.
func (c *Controller) Close() {
	c.Clear()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) closeLocked() {
	c.epoch++
	c.favTouched = false
	c.pop = Popover{Version: c.pop.Version}
}

// armTimerLocked replaces any pending timer, so at most one exists.
func (c *Controller) armTimerLocked() {
	c.cancelTimerLocked()
	token := c.timerToken
	c.timer = c.afterFunc(c.delay, func() { c.dismiss(token) })
	c.pop.DismissPending = true
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Invalidates a callback that already fired but has not taken the lock.
	c.timerToken++
	c.pop.DismissPending = false
}

func (c *Controller) dismiss(token uint64) {
	c.mu.Lock()
	if token != c.timerToken || c.timer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.closeLocked()
	c.notifyChange()
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.calls)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// currentLocked reports whether results issued under token for word still apply.
func (c *Controller) currentLocked(token uint64, word string) bool {
	return token == c.epoch && c.pop.Open && c.pop.Word == word
}

func (c *Controller) define(token uint64, word string) {
	defer c.wg.Done()

	ctx, cancel := c.callContext(c.ctx)
	def, err := c.svc.Define(ctx, word)
	cancel()

	c.mu.Lock()
	if !c.currentLocked(token, word) {
		c.mu.Unlock()
		return
	}
	c.pop.Loading = false
	if err != nil {
		c.pop.Err = err
		logging.Debug("word lookup failed", "word", word, "error", err)
	} else {
		c.pop.Definition = &def
	}
	c.notifyChange()
}

func (c *Controller) checkFavorite(token uint64, word string) {
	defer c.wg.Done()

	ctx, cancel := c.callContext(c.ctx)
	fav, err := c.svc.IsFavorite(ctx, word)
	cancel()

	if err != nil {
		logging.Debug("favorite check failed", "word", word, "error", err)
		return
	}

	c.mu.Lock()
	if !c.currentLocked(token, word) || c.favTouched {
		c.mu.Unlock()
		return
	}
	c.pop.Favorite = fav
	c.notifyChange()
}
