package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory(ttl time.Duration, clock *fakeClock) *Memory {
	m := NewMemory(ttl, time.Hour)
	m.now = clock.Now
	return m
}

var parisResults = []model.SearchResult{
	{Title: "Paris weather", URL: "https://weather.example/paris", Snippet: "Sunny"},
	{Title: "Paris forecast", URL: "https://forecast.example/paris", Snippet: "Rain later"},
}

func TestMemory_TTLBoundary(t *testing.T) {
	const ttl = time.Hour
	const epsilon = time.Millisecond

	clock := newFakeClock()
	m := newTestMemory(ttl, clock)
	m.Put("paris weather", parisResults)

	clock.Advance(ttl - epsilon)
	if _, ok := m.Get("paris weather"); !ok {
		t.Fatal("expected hit just before TTL")
	}

	clock.Advance(epsilon)
	if _, ok := m.Get("paris weather"); ok {
		t.Fatal("expected miss at exactly TTL")
	}

	clock.Advance(epsilon)
	if _, ok := m.Get("paris weather"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestMemory_RefreshAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(time.Minute, clock)
	m.Put("q", parisResults[:1])

	clock.Advance(2 * time.Minute)
	if _, ok := m.Get("q"); ok {
		t.Fatal("expected expired entry to miss")
	}

	m.Put("q", parisResults)
	got, ok := m.Get("q")
	if !ok || len(got) != 2 {
		t.Fatalf("expected refreshed entry with 2 results, got %v (ok=%v)", got, ok)
	}
}

func TestMemory_KeyNormalization(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(time.Hour, clock)
	m.Put("Paris weather", parisResults)

	for _, q := range []string{"Paris weather", "  paris WEATHER ", "paris\tweather", "PARIS   WEATHER"} {
		got, ok := m.Get(q)
		if !ok {
			t.Errorf("expected hit for %q", q)
			continue
		}
		if len(got) != len(parisResults) {
			t.Errorf("%q: expected %d results, got %d", q, len(parisResults), len(got))
		}
	}

	if m.Len() != 1 {
		t.Errorf("expected a single entry, got %d", m.Len())
	}
}

func TestMemory_PreservesOrder(t *testing.T) {
	m := newTestMemory(time.Hour, newFakeClock())
	m.Put("q", parisResults)

	got, _ := m.Get("q")
	for i := range parisResults {
		if got[i].URL != parisResults[i].URL {
			t.Errorf("position %d: expected %s, got %s", i, parisResults[i].URL, got[i].URL)
		}
	}
}

func TestMemory_ReturnedSliceIsCopy(t *testing.T) {
	m := newTestMemory(time.Hour, newFakeClock())
	m.Put("q", parisResults)

	got, _ := m.Get("q")
	got[0].Title = "mutated"

	again, _ := m.Get("q")
	if again[0].Title != parisResults[0].Title {
		t.Error("mutating returned results changed the cached entry")
	}
}

func TestMemory_InsertKeepsRemainingTTL(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(10*time.Minute, clock)

	m.Insert(Entry{Query: "old", Results: parisResults, InsertedAt: clock.Now().Add(-8 * time.Minute)})
	if _, ok := m.Lookup("old"); !ok {
		t.Fatal("expected entry with remaining TTL to load")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := m.Lookup("old"); ok {
		t.Fatal("expected entry to expire at its original TTL")
	}

	m.Insert(Entry{Query: "stale", Results: parisResults, InsertedAt: clock.Now().Add(-time.Hour)})
	if m.Len() != 1 {
		t.Errorf("expected stale entry to be ignored, have %d items", m.Len())
	}
}

func TestMemory_InsertClampsFutureTimestamp(t *testing.T) {
	clock := newFakeClock()
	m := newTestMemory(10*time.Minute, clock)

	m.Insert(Entry{Query: "skewed", Results: parisResults, InsertedAt: clock.Now().Add(time.Hour)})
	e, ok := m.Lookup("skewed")
	if !ok {
		t.Fatal("expected skewed entry to load")
	}
	if !e.InsertedAt.Equal(clock.Now()) {
		t.Errorf("expected insertion time clamped to now, got %v", e.InsertedAt)
	}

	clock.Advance(10 * time.Minute)
	if _, ok := m.Lookup("skewed"); ok {
		t.Fatal("future-dated entry served past its TTL")
	}
}

func TestEntry_Covers(t *testing.T) {
	e := Entry{Requested: 5}
	if !e.Covers(3) || !e.Covers(5) {
		t.Error("entry should cover smaller or equal requests")
	}
	if e.Covers(6) {
		t.Error("entry should not cover larger requests")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := newTestMemory(time.Hour, newFakeClock())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				results := []model.SearchResult{
					{Title: fmt.Sprintf("w%d-%d", worker, i), URL: fmt.Sprintf("https://example.com/%d/%d", worker, i)},
					{Title: fmt.Sprintf("w%d-%d-b", worker, i), URL: fmt.Sprintf("https://example.com/%d/%d/b", worker, i)},
				}
				m.Put("shared query", results)
				if got, ok := m.Get("shared query"); ok {
					// Entries are replaced whole: both results come from the same writer
					if len(got) != 2 || got[0].Title+"-b" != got[1].Title {
						t.Errorf("torn entry: %+v", got)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"Paris weather":    "paris weather",
		"  paris WEATHER ": "paris weather",
		"a\n\tb":           "a b",
		"":                 "",
		"   ":              "",
	}
	for in, want := range tests {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
