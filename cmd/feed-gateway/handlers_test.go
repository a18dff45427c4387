package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	"masjid-feed/internal/usecase/feed"
	"masjid-feed/internal/usecase/moderation"
)

type stubAPI struct {
	mu      sync.Mutex
	records map[string][]map[string]any
	likeErr error
	created map[string]any
	deleted []int64
}

func (s *stubAPI) FetchFeed(ctx context.Context, feedContext string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[feedContext], nil
}

func (s *stubAPI) Like(ctx context.Context, itemID int64, key string) error { return s.likeErr }

func (s *stubAPI) Comment(ctx context.Context, itemID int64, text, key string) error { return nil }

func (s *stubAPI) UpdateStatus(ctx context.Context, itemID int64, status string) error { return nil }

func (s *stubAPI) Delete(ctx context.Context, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, itemID)
	return nil
}

func (s *stubAPI) Create(ctx context.Context, item domain.NewItem, key string) (map[string]any, error) {
	return s.created, nil
}

type staticReference struct {
	data domain.ReferenceData
}

func (s staticReference) Load(ctx context.Context) (domain.ReferenceData, error) { return s.data, nil }

type archiveStub struct {
	items []domain.FeedItem
}

func (a archiveStub) ListEvents(ctx context.Context, from, to time.Time) ([]domain.FeedItem, error) {
	return a.items, nil
}

func record(id int64, title string) map[string]any {
	return map[string]any{"id": float64(id), "title": title, "mosque_id": "m-1", "like_count": float64(2)}
}

func kajian(id int64, title, eventDate, speaker string) map[string]any {
	return map[string]any{
		"id":         float64(id),
		"title":      title,
		"type":       "kajian",
		"mosque_id":  "m-1",
		"event_date": eventDate,
		"speaker_id": speaker,
	}
}

func newTestGateway(t *testing.T, api *stubAPI) (*gateway, http.Handler) {
	t.Helper()
	var sessions []*feed.Session
	for _, name := range []string{"masjid-1", "marketplace"} {
		s := feed.NewSession(name, api, feed.Normalizer{Location: time.UTC}, zerolog.Nop())
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку старта: %v", err)
		}
		t.Cleanup(s.Close)
		sessions = append(sessions, s)
	}
	ref := staticReference{data: domain.ReferenceData{Speakers: []domain.Speaker{{ID: "s1", Name: "Ustadz Ahmad"}}}}
	g := newGateway(sessions, moderation.NewService(api, zerolog.Nop()), ref, zerolog.Nop())
	g.loc = time.UTC
	g.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	g.routes(r)
	return g, r
}

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("ожидали JSON, получили %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestFeedEndpoint(t *testing.T) {
	api := &stubAPI{records: map[string][]map[string]any{"masjid-1": {record(8, "b"), record(10, "a")}}}
	_, h := newTestGateway(t, api)

	rec := do(t, h, http.MethodGet, "/api/v1/feeds/masjid-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	resp := decode[feedResponse](t, rec)
	if len(resp.Items) != 2 || resp.Items[0].ID != 10 || resp.Items[1].ID != 8 {
		t.Fatalf("ожидали ленту [10 8], получили %+v", resp.Items)
	}
	if resp.Status != "idle" || resp.Error != "" {
		t.Fatalf("неожиданный статус %q / %q", resp.Status, resp.Error)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/feeds/marketplace", "", nil)
	if got := decode[feedResponse](t, rec); got.Items == nil || len(got.Items) != 0 {
		t.Fatalf("пустая лента должна быть пустым массивом: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/feeds/masjid-1/status", "", nil)
	if st := decode[statusResponse](t, rec); st.Size != 2 {
		t.Fatalf("ожидали размер 2, получили %d", st.Size)
	}
}

func TestUnknownContext(t *testing.T) {
	_, h := newTestGateway(t, &stubAPI{})
	rec := do(t, h, http.MethodGet, "/api/v1/feeds/tidak-ada", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "Data tidak ditemukan") {
		t.Fatalf("ожидали сообщение для пользователя, получили %s", body)
	}
}

func TestLikeEndpoint(t *testing.T) {
	api := &stubAPI{records: map[string][]map[string]any{"masjid-1": {record(10, "a")}}}
	g, h := newTestGateway(t, api)

	rec := do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/like", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if item := decode[domain.FeedItem](t, rec); item.LikeCount != 3 {
		t.Fatalf("ожидали 3 лайка, получили %d", item.LikeCount)
	}

	api.likeErr = domain.ErrServer
	rec = do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/like", "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Gagal menyukai postingan.") {
		t.Fatalf("ожидали сообщение о лайке, получили %s", rec.Body.String())
	}
	item, _ := g.sessions["masjid-1"].Store().Get(10)
	if item.LikeCount != 3 {
		t.Fatalf("после отката ожидали 3 лайка, получили %d", item.LikeCount)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items/abc/like", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("некорректный id: ожидали 400, получили %d", rec.Code)
	}
}

func TestCommentStatusDelete(t *testing.T) {
	api := &stubAPI{records: map[string][]map[string]any{"masjid-1": {record(10, "a"), record(9, "b")}}}
	g, h := newTestGateway(t, api)

	rec := do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/comments", `{"content":"  "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("пустой комментарий: ожидали 400, получили %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/comments", `{"content":"Masya Allah"}`, nil)
	if item := decode[domain.FeedItem](t, rec); rec.Code != http.StatusOK || item.CommentCount != 1 {
		t.Fatalf("ожидали 1 комментарий, получили %d (%d)", item.CommentCount, rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/v1/feeds/masjid-1/items/9/status", `{"status":"Approved"}`, nil)
	if item := decode[domain.FeedItem](t, rec); item.Status != "approved" {
		t.Fatalf("ожидали статус approved, получили %q", item.Status)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/feeds/masjid-1/items/9", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	if _, ok := g.sessions["masjid-1"].Store().Get(9); ok {
		t.Fatalf("запись должна быть удалена из ленты")
	}
	if len(api.deleted) != 1 || api.deleted[0] != 9 {
		t.Fatalf("ожидали удаление на сервере, получили %v", api.deleted)
	}
}

func TestCreateEndpoint(t *testing.T) {
	api := &stubAPI{created: map[string]any{"id": float64(77), "title": "Infaq Jumat", "mosque_id": "m-1"}}
	g, h := newTestGateway(t, api)

	rec := do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items", `{"title":"Infaq Jumat","content":"isi","mosque_id":"m-1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидали 201, получили %d: %s", rec.Code, rec.Body.String())
	}
	if item := decode[domain.FeedItem](t, rec); item.ID != 77 {
		t.Fatalf("ожидали id от сервера, получили %d", item.ID)
	}
	items := g.sessions["masjid-1"].Store().Items()
	if len(items) != 1 || items[0].ID != 77 {
		t.Fatalf("временная запись должна быть заменена, в ленте %+v", items)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/feeds/masjid-1/items", `{"title":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("пустой заголовок: ожидали 400, получили %d", rec.Code)
	}
}

func TestWriteRoutesRequireToken(t *testing.T) {
	api := &stubAPI{records: map[string][]map[string]any{"masjid-1": {record(10, "a")}}}
	g, _ := newTestGateway(t, api)
	g.writeToken = "rahasia"
	r := chi.NewRouter()
	g.routes(r)

	if rec := do(t, r, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/like", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("без токена ожидали 401, получили %d", rec.Code)
	}
	header := http.Header{"Authorization": []string{"Bearer rahasia"}}
	if rec := do(t, r, http.MethodPost, "/api/v1/feeds/masjid-1/items/10/like", "", header); rec.Code != http.StatusOK {
		t.Fatalf("с токеном ожидали 200, получили %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/feeds/masjid-1", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("чтение не требует токена, получили %d", rec.Code)
	}
}

func TestCalendarEndpoint(t *testing.T) {
	api := &stubAPI{records: map[string][]map[string]any{
		"masjid-1": {
			kajian(1, "Kajian Fiqih", "2025-03-14T19:00:00Z", "s1"),
			kajian(2, "Kajian Tafsir", "2025-03-14T08:00:00Z", "s2"),
			kajian(3, "Kajian Hadits", "2025-04-02T08:00:00Z", "s1"),
			kajian(4, "Kajian Bulan Lalu", "2025-01-10T08:00:00Z", "s1"),
			record(5, "Pengumuman"),
		},
		"marketplace": {kajian(1, "Kajian Fiqih", "2025-03-14T19:00:00Z", "s1")},
	}}
	g, h := newTestGateway(t, api)
	archived := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	g.archive = archiveStub{items: []domain.FeedItem{
		{ID: 40, Title: "Kajian Arsip", Kind: domain.KindKajian, EventAt: &archived, Speaker: &domain.Ref{ID: "s1"}},
	}}

	rec := do(t, h, http.MethodGet, "/api/v1/calendar?month=2025-03", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	resp := decode[calendarResponse](t, rec)
	if resp.Month != "2025-03" || len(resp.Grid) != 42 || len(resp.Counts) != 42 {
		t.Fatalf("неожиданная сетка: %s, %d ячеек", resp.Month, len(resp.Grid))
	}
	byDay := make(map[string][]int64)
	for _, day := range resp.Days {
		for _, ev := range day.Events {
			byDay[day.DateKey] = append(byDay[day.DateKey], ev.ID)
		}
	}
	if got := byDay["2025-03-14"]; len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("ожидали [2 1] по времени события без дублей, получили %v", got)
	}
	if got := byDay["2025-04-02"]; len(got) != 1 {
		t.Fatalf("дни соседнего месяца в сетке тоже показываются, получили %v", got)
	}
	if got := byDay["2025-03-20"]; len(got) != 1 || got[0] != 40 {
		t.Fatalf("ожидали событие из архива, получили %v", got)
	}
	if _, ok := byDay["2025-01-10"]; ok {
		t.Fatalf("события вне сетки не показываются")
	}

	rec = do(t, h, http.MethodGet, "/api/v1/calendar?month=2025-03&speaker=s2", "", nil)
	resp = decode[calendarResponse](t, rec)
	if len(resp.Days) != 1 || resp.Days[0].Events[0].ID != 2 {
		t.Fatalf("фильтр по спикеру: ожидали только запись 2, получили %+v", resp.Days)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/calendar?q=ahmad", "", nil)
	resp = decode[calendarResponse](t, rec)
	if resp.Month != "2025-03" {
		t.Fatalf("без month ожидали текущий месяц, получили %s", resp.Month)
	}
	if len(resp.Days) != 3 {
		t.Fatalf("поиск по имени спикера из справочника: ожидали 3 дня, получили %+v", resp.Days)
	}

	if rec = do(t, h, http.MethodGet, "/api/v1/calendar?month=2025-13", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("неверный месяц: ожидали 400, получили %d", rec.Code)
	}
}

func TestListParam(t *testing.T) {
	q := map[string][]string{"speaker": {"s1, s2", "", "s3"}}
	got := listParam(q, "speaker")
	if len(got) != 3 || got[0] != "s1" || got[1] != "s2" || got[2] != "s3" {
		t.Fatalf("неожиданные значения %v", got)
	}
	if listParam(q, "kitab") != nil {
		t.Fatalf("отсутствующий параметр даёт nil")
	}
}

func TestQueueName(t *testing.T) {
	if queueName("", "m-1") != "" || queueName("feed", "m-1") != "feed.m-1" {
		t.Fatalf("неожиданные имена очередей")
	}
}
