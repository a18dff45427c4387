package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
)

// Poller — второй источник ленты: периодически перечитывает bulk fetch
// и отдаёт каждую запись как new_announcement. Коллекцию не заменяет.
type Poller struct {
	api         domain.FeedAPI
	feedContext string
	interval    time.Duration
	log         zerolog.Logger
	seq         uint64
}

// NewPoller создаёт опрос ленты с заданным интервалом.
func NewPoller(api domain.FeedAPI, feedContext string, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		api:         api,
		feedContext: feedContext,
		interval:    interval,
		log:         logger.With().Str("component", "feed_poller").Str("context", feedContext).Logger(),
	}
}

// Run опрашивает API до отмены ctx. Ошибки опроса логируются, следующий тик повторяет запрос.
func (p *Poller) Run(ctx context.Context, handle domain.FrameHandler) error {
	if p.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		records, err := p.api.FetchFeed(ctx, p.feedContext)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn().Err(err).Msg("feed: опрос ленты не удался")
			continue
		}
		now := time.Now().UTC()
		for _, raw := range records {
			if ctx.Err() != nil {
				return nil
			}
			p.seq++
			handle(domain.Frame{
				Source:     "poll",
				Seq:        p.seq,
				Type:       domain.FrameNewAnnouncement,
				Data:       raw,
				ReceivedAt: now,
			})
		}
	}
}

var _ domain.FrameSource = (*Poller)(nil)
