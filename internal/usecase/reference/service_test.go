package reference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
)

type stubAPI struct {
	calls int
	err   error
}

func (s *stubAPI) ListSpeakers(ctx context.Context) ([]domain.Speaker, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Speaker{{ID: "s1", Name: "Ustadz Adi"}}, nil
}

func (s *stubAPI) ListKitabs(ctx context.Context) ([]domain.Kitab, error) {
	return []domain.Kitab{{ID: "k1", Title: "Bulughul Maram", BidangIlmu: "Fiqih"}}, nil
}

func (s *stubAPI) ListMasjids(ctx context.Context) ([]domain.Masjid, error) {
	return []domain.Masjid{{ID: "m1", Name: "Al Ikhlas"}}, nil
}

type memoryCache struct {
	data   map[string][]byte
	ttl    time.Duration
	setErr error
}

func (c *memoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	c.ttl = ttl
	return nil
}

func (c *memoryCache) Get(key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func TestLoadUsesCacheAcrossInstances(t *testing.T) {
	api := &stubAPI{}
	cache := &memoryCache{}
	first := NewService(api, cache, time.Minute, zerolog.Nop())
	data, err := first.Load(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(data.Speakers) != 1 || len(data.Kitabs) != 1 || len(data.Masjids) != 1 {
		t.Fatalf("неожиданные справочники: %+v", data)
	}
	if cache.ttl != time.Minute {
		t.Fatalf("ожидали TTL минута, получили %s", cache.ttl)
	}

	second := NewService(api, cache, time.Minute, zerolog.Nop())
	data, err = second.Load(context.Background())
	if err != nil || data.Kitabs[0].BidangIlmu != "Fiqih" {
		t.Fatalf("ожидали данные из кэша: %+v (%v)", data, err)
	}
	if api.calls != 1 {
		t.Fatalf("API должен вызываться один раз, вызван %d", api.calls)
	}
}

func TestLoadRefreshesAfterTTL(t *testing.T) {
	api := &stubAPI{}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(api, nil, time.Minute, zerolog.Nop())
	svc.now = func() time.Time { return now }

	svc.Load(context.Background())
	svc.Load(context.Background())
	if api.calls != 1 {
		t.Fatalf("ожидали один вызов в пределах TTL, получили %d", api.calls)
	}
	now = now.Add(2 * time.Minute)
	svc.Load(context.Background())
	if api.calls != 2 {
		t.Fatalf("ожидали обновление после TTL, получили %d", api.calls)
	}
}

func TestLoadFallsBackToStaleData(t *testing.T) {
	api := &stubAPI{}
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(api, nil, time.Minute, zerolog.Nop())
	svc.now = func() time.Time { return now }
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	api.err = domain.ErrNetwork
	now = now.Add(time.Hour)
	data, err := svc.Load(context.Background())
	if err != nil || len(data.Speakers) != 1 {
		t.Fatalf("ожидали устаревшие справочники, получили %+v (%v)", data, err)
	}
}

func TestLoadErrorWithoutData(t *testing.T) {
	api := &stubAPI{err: domain.ErrServer}
	svc := NewService(api, &memoryCache{setErr: errors.New("redis down")}, time.Minute, zerolog.Nop())
	_, err := svc.Load(context.Background())
	var actionErr *domain.ActionError
	if !errors.As(err, &actionErr) || actionErr.Action != domain.ActionFetch || !errors.Is(err, domain.ErrServer) {
		t.Fatalf("ожидали ActionError(fetch) с ErrServer, получили %v", err)
	}
}

func TestLoadIgnoresCacheWriteFailure(t *testing.T) {
	api := &stubAPI{}
	svc := NewService(api, &memoryCache{setErr: errors.New("redis down")}, time.Minute, zerolog.Nop())
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("ошибка кэша не должна ломать загрузку: %v", err)
	}
}
