package quote

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"motivechat/internal/apperr"
	"motivechat/internal/models"
	"motivechat/internal/service/ai"
)

// Prompt asks the responder for today's quote.
const Prompt = `Generate a single inspiring and motivational quote.
It should be uplifting, positive, and encouraging.
Format: Just the quote itself, no attribution needed. Keep it concise and impactful.`

const (
	ScopeGlobal = "global"
	ScopeUser   = "user"
)

// DayKey identifies the quote slot for t in loc. Per-user scope appends the user id.
func DayKey(scope string, userID int64, t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	day := t.In(loc).Format(time.DateOnly)
	if scope == ScopeUser {
		return fmt.Sprintf("%s:user:%d", day, userID)
	}
	return day
}

// Cache generates at most one quote per day key and serves it afterwards.
type Cache struct {
	store     Store
	responder ai.Responder
	curated   []string
	scope     string
	loc       *time.Location
	now       func() time.Time

	group       singleflight.Group
	generations atomic.Int64
}

// Options tune a Cache. Zero values select the global scope, UTC and the built-in quotes.
type Options struct {
	Scope    string
	Location *time.Location
	Curated  []string
}

func NewCache(store Store, responder ai.Responder, opts Options) *Cache {
	c := &Cache{
		store:     store,
		responder: responder,
		curated:   opts.Curated,
		scope:     opts.Scope,
		loc:       opts.Location,
		now:       time.Now,
	}
	if c.scope == "" {
		c.scope = ScopeGlobal
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if len(c.curated) == 0 {
		c.curated = DefaultCurated
	}
	return c
}

// Today returns the quote for the current day in the cache's timezone.
func (c *Cache) Today(ctx context.Context, userID int64) (*models.DailyQuote, error) {
	now := c.now()
	key := DayKey(c.scope, userID, now, c.loc)
	text, err := c.GetOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}
	return &models.DailyQuote{Date: now.In(c.loc).Format(time.DateOnly), Text: text}, nil
}

// GetOrCreate returns the quote stored for key, generating it on first use.
// Concurrent first callers share one generation; the store decides the winner
// between processes.
func (c *Cache) GetOrCreate(ctx context.Context, key string) (string, error) {
	if text, ok, err := c.store.Get(ctx, key); err != nil {
		return "", apperr.Storage(err)
	} else if ok {
		return text, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// shared by every waiter, so one caller leaving must not cancel it
		ctx := context.WithoutCancel(ctx)
		if text, ok, err := c.store.Get(ctx, key); err != nil {
			return "", err
		} else if ok {
			return text, nil
		}
		return c.store.PutIfAbsent(ctx, key, c.generate(ctx, key))
	})
	if err != nil {
		return "", apperr.Storage(err)
	}
	return v.(string), nil
}

// Generations counts quote generations performed by this cache.
func (c *Cache) Generations() int64 {
	return c.generations.Load()
}

func (c *Cache) generate(ctx context.Context, key string) string {
	c.generations.Add(1)
	if c.responder != nil {
		text, err := c.responder.Generate(ctx, Prompt, "")
		if err == nil {
			if text = cleanQuote(text); text != "" {
				return text
			}
		}
		log.Warn().Err(err).Str("day_key", key).Msg("quote generation failed, using curated quote")
	}
	return Pick(c.curated, key)
}

func cleanQuote(text string) string {
	text = strings.TrimSpace(text)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(text) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) {
			text = strings.TrimSpace(text[len(pair[0]) : len(text)-len(pair[1])])
			break
		}
	}
	return text
}
