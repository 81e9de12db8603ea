package lookup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestController(svc WordService) (*Controller, *fakeClock) {
	clock := &fakeClock{}
	c := NewController(svc, ControllerOptions{
		DismissDelay: DefaultDismissDelay,
		CallTimeout:  time.Second,
		afterFunc:    clock.afterFunc,
	})
	return c, clock
}

func settled(c *Controller) func() bool {
	return func() bool {
		c.wg.Wait()
		return !c.Snapshot().Loading
	}
}

func TestCleanWord(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"Hello,", "Hello"},
		{`"quoted"`, "quoted"},
		{"(aside)", "aside"},
		{"end.", "end"},
		{"why?!", "why"},
		{"[x]{y}", "xy"},
		{"it's", "its"},
		{"...", ""},
		{"  spaced  ", "spaced"},
		{"well-known", "well-known"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanWord(tt.in))
		})
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"Hi", "there,", "friend!"}, Words("Hi  there,\nfriend!"))
	assert.Empty(t, Words("   "))
}

func TestController_HoverEnterLoadsDefinitionAndFavorite(t *testing.T) {
	svc := newFakeService()
	svc.favorites["hello"] = true
	c, _ := newTestController(svc)
	defer c.Close()

	c.HoverEnter("hello,", Anchor{X: 3, Y: 7})

	p := c.Snapshot()
	assert.True(t, p.Open)
	assert.Equal(t, "hello", p.Word)
	assert.Equal(t, Anchor{X: 3, Y: 7}, p.Anchor)

	require.Eventually(t, settled(c), time.Second, 5*time.Millisecond)

	p = c.Snapshot()
	require.NotNil(t, p.Definition)
	assert.Equal(t, "gloss of hello", p.Definition.Gloss)
	assert.True(t, p.Favorite)
	assert.NoError(t, p.Err)
}

func TestController_PunctuationOnlyIsNoop(t *testing.T) {
	c, _ := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("?!", Anchor{})
	assert.False(t, c.Snapshot().Open)
}

func TestController_LookupFailureShownInline(t *testing.T) {
	svc := newFakeService()
	svc.missing["zzyzx"] = true
	c, _ := newTestController(svc)
	defer c.Close()

	c.HoverEnter("zzyzx", Anchor{})
	require.Eventually(t, settled(c), time.Second, 5*time.Millisecond)

	p := c.Snapshot()
	assert.True(t, p.Open, "failure must not close the popover")
	assert.ErrorIs(t, p.Err, ErrWordNotFound)
	assert.Nil(t, p.Definition)
}

func TestController_GracePeriodLetsPointerReachPopover(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()
	assert.True(t, c.Snapshot().DismissPending)
	assert.Equal(t, 1, clock.pending())
	assert.Equal(t, DefaultDismissDelay, clock.delays[0])

	c.PopoverEnter()
	assert.Zero(t, clock.pending())

	clock.fireAll()
	p := c.Snapshot()
	assert.True(t, p.Open)
	assert.True(t, p.Hovered)
	assert.False(t, p.DismissPending)
}

func TestController_ReenteringWordCancelsDismissal(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()
	c.HoverEnter("hello", Anchor{X: 1})
	clock.fireAll()

	p := c.Snapshot()
	assert.True(t, p.Open)
	assert.Equal(t, Anchor{X: 1}, p.Anchor)
}

func TestController_DismissesAfterLeave(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.PopoverEnter()
	c.PopoverLeave()
	require.Equal(t, 1, clock.pending())

	clock.fireAll()
	assert.False(t, c.Snapshot().Open)
}

func TestController_AtMostOneTimer(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()
	c.HoverLeave()
	c.PopoverEnter()
	c.PopoverLeave()
	c.HoverLeave()

	assert.Equal(t, 1, clock.pending())
	assert.Len(t, clock.all(), 4)
}

func TestController_StaleTimerCallbackIsIgnored(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()
	stale := clock.all()[0]

	c.PopoverEnter()
	// The callback may already be running when Stop is called.
	stale.f()

	assert.True(t, c.Snapshot().Open)
}

func TestController_StaleLookupIsDiscarded(t *testing.T) {
	svc := newFakeService()
	release := make(chan struct{})
	svc.defineBlock["alpha"] = release
	c, _ := newTestController(svc)
	defer c.Close()

	c.HoverEnter("alpha", Anchor{})
	c.HoverEnter("beta", Anchor{})

	close(release)
	c.wg.Wait()

	p := c.Snapshot()
	assert.Equal(t, "beta", p.Word)
	require.NotNil(t, p.Definition)
	assert.Equal(t, "gloss of beta", p.Definition.Gloss)
}

func TestController_ClearDropsResultsAndTimer(t *testing.T) {
	svc := newFakeService()
	release := make(chan struct{})
	svc.defineBlock["hello"] = release
	c, clock := newTestController(svc)
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()
	c.Clear()

	assert.False(t, c.Snapshot().Open)
	assert.Zero(t, clock.pending())

	close(release)
	c.wg.Wait()
	assert.False(t, c.Snapshot().Open)
	assert.Nil(t, c.Snapshot().Definition)
}

func TestController_ToggleFavorite(t *testing.T) {
	svc := newFakeService()
	c, _ := newTestController(svc)
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	require.Eventually(t, settled(c), time.Second, 5*time.Millisecond)

	require.NoError(t, c.ToggleFavorite(context.Background()))
	p := c.Snapshot()
	assert.True(t, p.Favorite)
	assert.False(t, p.Toggling)

	require.NoError(t, c.ToggleFavorite(context.Background()))
	assert.False(t, c.Snapshot().Favorite)
	assert.Equal(t, []bool{true, false}, svc.calls())
}

func TestController_ToggleFavoriteRevertsOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.setErr = errUnavailable
	c, _ := newTestController(svc)
	defer c.Close()

	var during Popover
	svc.onSet = func() { during = c.Snapshot() }

	c.HoverEnter("hello", Anchor{})
	require.Eventually(t, settled(c), time.Second, 5*time.Millisecond)

	err := c.ToggleFavorite(context.Background())
	assert.ErrorIs(t, err, errUnavailable)

	assert.True(t, during.Favorite, "flag flips before the adapter resolves")
	assert.True(t, during.Toggling)

	p := c.Snapshot()
	assert.False(t, p.Favorite)
	assert.False(t, p.Toggling)
	assert.True(t, p.Open)
	assert.NoError(t, p.Err, "favorite failures are not shown")
	assert.Len(t, svc.calls(), 1, "no automatic retry")
}

func TestController_ToggleWinsOverLateFavoriteCheck(t *testing.T) {
	svc := newFakeService()
	release := make(chan struct{})
	svc.favoriteBlock["hello"] = release
	c, _ := newTestController(svc)
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	require.NoError(t, c.ToggleFavorite(context.Background()))

	close(release)
	c.wg.Wait()
	assert.True(t, c.Snapshot().Favorite)
}

func TestController_ToggleWithoutPopover(t *testing.T) {
	c, _ := newTestController(newFakeService())
	defer c.Close()

	assert.ErrorIs(t, c.ToggleFavorite(context.Background()), ErrNoActiveWord)
}

func TestController_OnChangeReceivesSnapshots(t *testing.T) {
	c, clock := newTestController(newFakeService())
	defer c.Close()

	var mu sync.Mutex
	var versions []uint64
	c.OnChange(func(p Popover) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, p.Version)
	})

	c.HoverEnter("hello", Anchor{})
	c.wg.Wait()
	c.HoverLeave()
	clock.fireAll()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.NotEqual(t, versions[i-1], versions[i])
	}
}

func TestController_RealTimerDismisses(t *testing.T) {
	c := NewController(newFakeService(), ControllerOptions{DismissDelay: 10 * time.Millisecond})
	defer c.Close()

	c.HoverEnter("hello", Anchor{})
	c.HoverLeave()

	require.Eventually(t, func() bool { return !c.Snapshot().Open }, time.Second, 5*time.Millisecond)
}
