package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Prewarmer generates the global quote on a schedule so the first reader of
// the day does not wait on the responder.
type Prewarmer struct {
	cache *Cache
	cron  *cron.Cron
}

// NewPrewarmer schedules the cache's global quote with a standard 5-field cron spec
// evaluated in the cache's timezone.
func NewPrewarmer(cache *Cache, spec string) (*Prewarmer, error) {
	c := cron.New(cron.WithLocation(cache.loc))
	p := &Prewarmer{cache: cache, cron: c}
	if _, err := c.AddFunc(spec, p.warm); err != nil {
		return nil, fmt.Errorf("invalid prewarm schedule %q: %w", spec, err)
	}
	return p, nil
}

// Start runs the scheduler in the background.
func (p *Prewarmer) Start() {
	log.Info().Msg("starting daily quote prewarmer")
	p.cron.Start()
}

// Stop halts the scheduler and waits for a running warm-up, bounded by ctx.
func (p *Prewarmer) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (p *Prewarmer) warm() {
	if p.cache.scope != ScopeGlobal {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	key := DayKey(ScopeGlobal, 0, p.cache.now(), p.cache.loc)
	if _, err := p.cache.GetOrCreate(ctx, key); err != nil {
		log.Error().Err(err).Str("day_key", key).Msg("prewarm daily quote failed")
		return
	}
	log.Info().Str("day_key", key).Msg("daily quote ready")
}
