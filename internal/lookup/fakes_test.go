package lookup

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// fakeClock hands out timers that only fire when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func (c *fakeClock) pending() int {
	n := 0
	for _, t := range c.all() {
		if t.active() {
			n++
		}
	}
	return n
}

// fireAll runs every timer that has not been stopped.
func (c *fakeClock) fireAll() {
	for _, t := range c.all() {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = t.fired || run
		t.mu.Unlock()
		if run {
			t.f()
		}
	}
}

var errUnavailable = errors.New("service unavailable")

type fakeService struct {
	mu        sync.Mutex
	favorites map[string]bool
	missing   map[string]bool
	setErr    error
	setCalls  []bool
	onSet     func()

	// Calls for these words block until the channel is closed.
	defineBlock   map[string]chan struct{}
	favoriteBlock map[string]chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		favorites:     map[string]bool{},
		missing:       map[string]bool{},
		defineBlock:   map[string]chan struct{}{},
		favoriteBlock: map[string]chan struct{}{},
	}
}

func wait(ctx context.Context, ch chan struct{}) error {
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeService) Define(ctx context.Context, word string) (Definition, error) {
	if err := wait(ctx, s.defineBlock[word]); err != nil {
		return Definition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing[word] {
		return Definition{}, ErrWordNotFound
	}
	return Definition{Word: word, PartOfSpeech: "noun", Gloss: "gloss of " + word}, nil
}

// IsFavorite answers with the state at call time, even if it blocks.
func (s *fakeService) IsFavorite(ctx context.Context, word string) (bool, error) {
	s.mu.Lock()
	fav := s.favorites[word]
	s.mu.Unlock()
	if err := wait(ctx, s.favoriteBlock[word]); err != nil {
		return false, err
	}
	return fav, nil
}

func (s *fakeService) SetFavorite(ctx context.Context, word string, def *Definition, favorite bool) error {
	s.mu.Lock()
	s.setCalls = append(s.setCalls, favorite)
	onSet, err := s.onSet, s.setErr
	if err == nil {
		s.favorites[word] = favorite
	}
	s.mu.Unlock()
	if onSet != nil {
		onSet()
	}
	return err
}

func (s *fakeService) calls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.setCalls...)
}
