package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
)

const cacheKey = "reference:v1"

// Service отдаёт справочники календаря: спикеры, китабы, масджиды.
// Данные кэшируются в domain.Cache на ttl; ошибки кэша не мешают загрузке из API.
type Service struct {
	api   domain.ReferenceAPI
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger

	mu       sync.Mutex
	local    domain.ReferenceData
	loadedAt time.Time
	now      func() time.Time
}

// NewService создаёт сервис справочников. cache может быть nil.
func NewService(api domain.ReferenceAPI, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		api:   api,
		cache: cache,
		ttl:   ttl,
		log:   logger.With().Str("component", "reference").Logger(),
		now:   time.Now,
	}
}

// Load возвращает справочники из памяти, кэша или API.
func (s *Service) Load(ctx context.Context) (domain.ReferenceData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loadedAt.IsZero() && s.now().Sub(s.loadedAt) < s.ttl {
		return s.local, nil
	}
	if data, ok := s.fromCache(); ok {
		s.remember(data)
		return data, nil
	}

	data, err := s.fetch(ctx)
	if err != nil {
		if !s.loadedAt.IsZero() {
			s.log.Warn().Err(err).Msg("reference: API недоступен, отдаём устаревшие справочники")
			return s.local, nil
		}
		return domain.ReferenceData{}, &domain.ActionError{Action: domain.ActionFetch, Err: err}
	}
	s.remember(data)
	s.toCache(data)
	return data, nil
}

// Invalidate сбрасывает локальную копию.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) fetch(ctx context.Context) (domain.ReferenceData, error) {
	speakers, err := s.api.ListSpeakers(ctx)
	if err != nil {
		return domain.ReferenceData{}, fmt.Errorf("загрузка спикеров: %w", err)
	}
	kitabs, err := s.api.ListKitabs(ctx)
	if err != nil {
		return domain.ReferenceData{}, fmt.Errorf("загрузка китабов: %w", err)
	}
	masjids, err := s.api.ListMasjids(ctx)
	if err != nil {
		return domain.ReferenceData{}, fmt.Errorf("загрузка масджидов: %w", err)
	}
	return domain.ReferenceData{Speakers: speakers, Kitabs: kitabs, Masjids: masjids}, nil
}

func (s *Service) fromCache() (domain.ReferenceData, bool) {
	if s.cache == nil {
		return domain.ReferenceData{}, false
	}
	raw, err := s.cache.Get(cacheKey)
	if err != nil {
		return domain.ReferenceData{}, false
	}
	var data domain.ReferenceData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn().Err(err).Msg("reference: повреждённая запись кэша")
		return domain.ReferenceData{}, false
	}
	return data, true
}

func (s *Service) toCache(data domain.ReferenceData) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := s.cache.Set(cacheKey, raw, s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("reference: не удалось записать кэш")
	}
}

func (s *Service) remember(data domain.ReferenceData) {
	s.local = data
	s.loadedAt = s.now()
}
