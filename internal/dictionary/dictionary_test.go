package dictionary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lingo/internal/lookup"
	"lingo/internal/robustness"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

const serendipity = `[{
  "word": "serendipity",
  "phonetic": "",
  "phonetics": [{"text": "", "audio": ""}, {"text": "/ˌsɛɹ.ənˈdɪp.ɪ.ti/", "audio": "x.mp3"}],
  "meanings": [
    {"partOfSpeech": "noun", "definitions": [
      {"definition": "", "example": ""},
      {"definition": "An unsought, unintended, and/or unexpected discovery.", "example": "Finding that book was pure serendipity."}
    ]},
    {"partOfSpeech": "verb", "definitions": [{"definition": "ignored"}]}
  ]
}]`

func newTestDictionary(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:          srv.URL,
		CacheTTL:         time.Hour,
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
		HTTPClient:       &http.Client{Timeout: 5 * time.Second},
	})
}

func TestLookup(t *testing.T) {
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/entries/en/serendipity", r.URL.Path)
		w.Write([]byte(serendipity))
	})

	def, err := d.Lookup(context.Background(), "  Serendipity ")
	require.NoError(t, err)
	assert.Equal(t, lookup.Definition{
		Word:          "serendipity",
		Pronunciation: "/ˌsɛɹ.ənˈdɪp.ɪ.ti/",
		PartOfSpeech:  "noun",
		Gloss:         "An unsought, unintended, and/or unexpected discovery.",
		Example:       "Finding that book was pure serendipity.",
	}, def)
}

func TestLookupNotFoundIsCached(t *testing.T) {
	var calls atomic.Int32
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"No Definitions Found"}`))
	})

	for i := 0; i < 3; i++ {
		_, err := d.Lookup(context.Background(), "qwzx")
		assert.ErrorIs(t, err, lookup.ErrWordNotFound)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, robustness.StateClosed, d.breaker.GetState(), "misses are not failures")
}

func TestLookupHitsCache(t *testing.T) {
	var calls atomic.Int32
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(serendipity))
	})

	for i := 0; i < 3; i++ {
		_, err := d.Lookup(context.Background(), "serendipity")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	stats := d.CacheStats()
	assert.Equal(t, uint64(2), stats.Hits)
}

func TestConcurrentLookupsShareRequest(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(serendipity))
	})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Lookup(context.Background(), "serendipity")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := d.Lookup(ctx, "word")
		require.Error(t, err)
		assert.NotErrorIs(t, err, lookup.ErrWordNotFound)
	}
	_, err := d.Lookup(ctx, "word")
	assert.ErrorIs(t, err, robustness.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupCallerCancel(t *testing.T) {
	release := make(chan struct{})
	d := newTestDictionary(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte(serendipity))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Lookup(ctx, "serendipity")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared fetch keeps going and fills the cache.
	close(release)
	require.Eventually(t, func() bool {
		_, ok := d.cache.Get("serendipity")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestEmptyWord(t *testing.T) {
	d := New(Config{})
	_, err := d.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, lookup.ErrWordNotFound)
}

func TestCacheStatsDropsExpiredEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(serendipity))
	}))
	t.Cleanup(srv.Close)
	d := New(Config{BaseURL: srv.URL, CacheTTL: time.Millisecond})

	_, err := d.Lookup(context.Background(), "serendipity")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return d.CacheStats().Size == 0
	}, time.Second, 5*time.Millisecond)
}
