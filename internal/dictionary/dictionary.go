// Package dictionary resolves word definitions from a Free Dictionary API
// compatible service (dictionaryapi.dev).
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"lingo/internal/cache"
	"lingo/internal/logging"
	"lingo/internal/lookup"
	"lingo/internal/robustness"
)

// Config configures a Client.
type Config struct {
	BaseURL  string // default https://api.dictionaryapi.dev
	Language string // default en

	CacheSize int
	CacheTTL  time.Duration

	BreakerThreshold int
	BreakerReset     time.Duration

	HTTPClient *http.Client
}

// Client implements lookup.Dictionary. Successful lookups and misses are
// cached; concurrent lookups of one word share a single request.
type Client struct {
	base    string
	lang    string
	http    *http.Client
	cache   *cache.LRUCache[string, result]
	group   singleflight.Group
	breaker *robustness.CircuitBreaker
}

type result struct {
	def      lookup.Definition
	notFound bool
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dictionaryapi.dev"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 500
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	breaker := robustness.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset)
	breaker.IsFailure = func(err error) bool {
		return !errors.Is(err, lookup.ErrWordNotFound)
	}

	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		lang:    cfg.Language,
		http:    cfg.HTTPClient,
		cache:   cache.NewLRUCache[string, result](cfg.CacheSize, cfg.CacheTTL),
		breaker: breaker,
	}
}

// Lookup returns the first sense of word. Unknown words yield
// lookup.ErrWordNotFound.
func (c *Client) Lookup(ctx context.Context, word string) (lookup.Definition, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return lookup.Definition{}, lookup.ErrWordNotFound
	}

	if r, ok := c.cache.Get(word); ok {
		if r.notFound {
			return lookup.Definition{}, lookup.ErrWordNotFound
		}
		return r.def, nil
	}

	// The shared fetch must outlive any single caller; each caller still
	// stops waiting when its own ctx ends.
	ch := c.group.DoChan(word, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()

		var def lookup.Definition
		err := c.breaker.Execute(fetchCtx, func() error {
			var err error
			def, err = c.fetch(fetchCtx, word)
			return err
		})
		switch {
		case err == nil:
			c.cache.Set(word, result{def: def})
		case errors.Is(err, lookup.ErrWordNotFound):
			c.cache.Set(word, result{notFound: true})
		}
		return def, err
	})

	select {
	case <-ctx.Done():
		return lookup.Definition{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return lookup.Definition{}, res.Err
		}
		return res.Val.(lookup.Definition), nil
	}
}

func (c *Client) fetchTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return 15 * time.Second
}

// CacheStats drops expired entries and reports the cache counters.
func (c *Client) CacheStats() cache.Stats {
	if n := c.cache.Cleanup(); n > 0 {
		logging.Debug("dictionary cache cleanup", "expired", n)
	}
	return c.cache.Stats()
}

type entryWire struct {
	Word      string `json:"word"`
	Phonetic  string `json:"phonetic"`
	Phonetics []struct {
		Text  string `json:"text"`
		Audio string `json:"audio"`
	} `json:"phonetics"`
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
			Example    string `json:"example"`
		} `json:"definitions"`
	} `json:"meanings"`
}

func (c *Client) fetch(ctx context.Context, word string) (lookup.Definition, error) {
	endpoint := fmt.Sprintf("%s/api/v2/entries/%s/%s", c.base, url.PathEscape(c.lang), url.PathEscape(word))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return lookup.Definition{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return lookup.Definition{}, fmt.Errorf("dictionary request: %w", err)
	}
	defer resp.Body.Close()
	logging.Debug("dictionary lookup", "word", word, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return lookup.Definition{}, lookup.ErrWordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return lookup.Definition{}, fmt.Errorf("dictionary error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []entryWire
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return lookup.Definition{}, fmt.Errorf("decode dictionary response: %w", err)
	}
	def, ok := firstSense(entries)
	if !ok {
		return lookup.Definition{}, lookup.ErrWordNotFound
	}
	return def, nil
}

// firstSense picks the first definition across entries and the first
// non-empty pronunciation.
func firstSense(entries []entryWire) (lookup.Definition, bool) {
	var def lookup.Definition
	found := false
	for _, e := range entries {
		if def.Word == "" {
			def.Word = e.Word
		}
		if def.Pronunciation == "" {
			def.Pronunciation = e.Phonetic
		}
		for _, p := range e.Phonetics {
			if def.Pronunciation == "" && p.Text != "" {
				def.Pronunciation = p.Text
			}
		}
		for _, m := range e.Meanings {
			for _, d := range m.Definitions {
				if found || strings.TrimSpace(d.Definition) == "" {
					continue
				}
				def.PartOfSpeech = m.PartOfSpeech
				def.Gloss = d.Definition
				def.Example = d.Example
				found = true
			}
		}
	}
	return def, found
}
