package quote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motivechat/internal/config"
	"motivechat/internal/service/ai"
	"motivechat/internal/storage"
)

func TestDayKey(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	ts := time.Date(2026, 5, 1, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-05-01", DayKey(ScopeGlobal, 7, ts, time.UTC))
	assert.Equal(t, "2026-05-02", DayKey(ScopeGlobal, 7, ts, tokyo))
	assert.Equal(t, "2026-05-01:user:7", DayKey(ScopeUser, 7, ts, nil))
	assert.NotEqual(t, DayKey(ScopeUser, 1, ts, nil), DayKey(ScopeUser, 2, ts, nil))
}

func TestGetOrCreateConcurrentCallersShareOneGeneration(t *testing.T) {
	var calls atomic.Int32
	responder := ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		n := calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return fmt.Sprintf("quote number %d", n), nil
	})
	cache := NewCache(NewMemoryStore(), responder, Options{})

	const k = 64
	results := make([]string, k)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			text, err := cache.GetOrCreate(context.Background(), "2026-05-01")
			assert.NoError(t, err)
			results[i] = text
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, cache.Generations())
	for _, r := range results {
		assert.Equal(t, "quote number 1", r)
	}

	// a new day key triggers exactly one more generation
	text, err := cache.GetOrCreate(context.Background(), "2026-05-02")
	require.NoError(t, err)
	assert.Equal(t, "quote number 2", text)
}

func TestTodayIsSharedAcrossUsersInGlobalScope(t *testing.T) {
	var calls atomic.Int32
	cache := NewCache(NewMemoryStore(), ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return fmt.Sprintf("\"Keep going #%d\"", calls.Add(1)), nil
	}), Options{})
	cache.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	a, err := cache.Today(context.Background(), 1)
	require.NoError(t, err)
	b, err := cache.Today(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, "Keep going #1", a.Text)
	assert.Equal(t, "2026-05-01", a.Date)
}

func TestTodayPerUserScope(t *testing.T) {
	var calls atomic.Int32
	cache := NewCache(NewMemoryStore(), ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return fmt.Sprintf("q%d", calls.Add(1)), nil
	}), Options{Scope: ScopeUser})

	a1, err := cache.Today(context.Background(), 1)
	require.NoError(t, err)
	a2, err := cache.Today(context.Background(), 1)
	require.NoError(t, err)
	b, err := cache.Today(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, a1.Text, a2.Text)
	assert.NotEqual(t, a1.Text, b.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGenerateFallsBackToCurated(t *testing.T) {
	curated := []string{"one", "two", "three"}
	failing := ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return "", errors.New("provider down")
	})
	cache := NewCache(NewMemoryStore(), failing, Options{Curated: curated})

	text, err := cache.GetOrCreate(context.Background(), "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, Pick(curated, "2026-05-01"), text)

	again, err := cache.GetOrCreate(context.Background(), "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, text, again)
	assert.EqualValues(t, 1, cache.Generations())

	blank := NewCache(NewMemoryStore(), ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return `  ""  `, nil
	}), Options{Curated: curated})
	text, err = blank.GetOrCreate(context.Background(), "k")
	require.NoError(t, err)
	assert.Contains(t, curated, text)
}

func TestPickIsDeterministic(t *testing.T) {
	assert.Equal(t, Pick(nil, "2026-01-01"), Pick(DefaultCurated, "2026-01-01"))
	assert.Equal(t, Pick(DefaultCurated, "x"), Pick(DefaultCurated, "x"))
	assert.Equal(t, "only", Pick([]string{"only"}, "any"))
}

func TestSQLStorePutIfAbsentKeepsFirstValue(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(db, "sqlite3"))

	store := NewSQLStore(db, "sqlite")
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "2026-05-01")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := store.PutIfAbsent(ctx, "2026-05-01", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	second, err := store.PutIfAbsent(ctx, "2026-05-01", "second")
	require.NoError(t, err)
	assert.Equal(t, "first", second)

	text, ok, err := store.Get(ctx, "2026-05-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", text)
}

func TestMemoryStorePutIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	got, err := store.PutIfAbsent(ctx, "k", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	got, err = store.PutIfAbsent(ctx, "k", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestLoadCurated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.txt")
	body := "# team favourites\n\nKeep moving forward.\n  Stay curious.  \n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	quotes, err := LoadCurated(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Keep moving forward.", "Stay curious."}, quotes)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o600))
	_, err = LoadCurated(context.Background(), empty)
	assert.Error(t, err)
}

func TestPrewarmer(t *testing.T) {
	cache := NewCache(NewMemoryStore(), ai.ResponderFunc(func(ctx context.Context, prompt, persona string) (string, error) {
		return "warm", nil
	}), Options{})
	cache.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 5, 0, time.UTC) }

	_, err := NewPrewarmer(cache, "not a cron spec")
	assert.Error(t, err)

	p, err := NewPrewarmer(cache, "0 0 * * *")
	require.NoError(t, err)
	p.warm()

	text, ok, err := cache.store.Get(context.Background(), "2026-05-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "warm", text)

	p.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
}
