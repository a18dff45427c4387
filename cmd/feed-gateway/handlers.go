package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"masjid-feed/internal/domain"
	httpinfra "masjid-feed/internal/infra/http"
	"masjid-feed/internal/usecase/calendar"
	"masjid-feed/internal/usecase/feed"
)

type actions interface {
	Like(ctx context.Context, store *feed.Store, itemID int64) error
	Comment(ctx context.Context, store *feed.Store, itemID int64, text string) error
	SetStatus(ctx context.Context, store *feed.Store, itemID int64, status string) error
	Delete(ctx context.Context, store *feed.Store, itemID int64) error
	Create(ctx context.Context, store *feed.Store, in domain.NewItem) (domain.FeedItem, error)
}

type referenceLoader interface {
	Load(ctx context.Context) (domain.ReferenceData, error)
}

// eventArchive отдаёт kajian из зеркала для контекстов, которые сейчас не открыты.
type eventArchive interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]domain.FeedItem, error)
}

type gateway struct {
	sessions     map[string]*feed.Session
	order        []string
	actions      actions
	reference    referenceLoader
	archive      eventArchive
	loc          *time.Location
	firstWeekday time.Weekday
	writeToken   string
	now          func() time.Time
	log          zerolog.Logger
}

func newGateway(sessions []*feed.Session, acts actions, ref referenceLoader, logger zerolog.Logger) *gateway {
	g := &gateway{
		sessions:  make(map[string]*feed.Session, len(sessions)),
		actions:   acts,
		reference: ref,
		loc:       time.Local,
		now:       time.Now,
		log:       logger.With().Str("component", "gateway").Logger(),
	}
	for _, s := range sessions {
		g.sessions[s.Name()] = s
		g.order = append(g.order, s.Name())
	}
	return g
}

func (g *gateway) routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/calendar", g.calendar)
		r.Route("/feeds/{context}", func(r chi.Router) {
			r.Get("/", g.feed)
			r.Get("/status", g.status)
			r.Group(func(w chi.Router) {
				w.Use(httpinfra.TokenAuthMiddleware(g.writeToken))
				w.Post("/refresh", g.refresh)
				w.Post("/items", g.create)
				w.Post("/items/{id}/like", g.like)
				w.Post("/items/{id}/comments", g.comment)
				w.Put("/items/{id}/status", g.setStatus)
				w.Delete("/items/{id}", g.remove)
			})
		})
	})
}

type feedResponse struct {
	Context string            `json:"context"`
	Status  string            `json:"status"`
	Error   string            `json:"error,omitempty"`
	Items   []domain.FeedItem `json:"items"`
}

type statusResponse struct {
	Context string `json:"context"`
	Status  string `json:"status"`
	Size    int    `json:"size"`
	Error   string `json:"error,omitempty"`
}

type calendarDay struct {
	DateKey string            `json:"dateKey"`
	Events  []domain.FeedItem `json:"events"`
}

type calendarResponse struct {
	Month        string                `json:"month"`
	FirstWeekday string                `json:"firstWeekday"`
	Grid         []domain.CalendarCell `json:"grid"`
	Counts       []int                 `json:"counts"`
	Days         []calendarDay         `json:"days"`
}

func (g *gateway) session(w http.ResponseWriter, r *http.Request) (*feed.Session, bool) {
	s, ok := g.sessions[chi.URLParam(r, "context")]
	if !ok {
		httpinfra.WriteError(w, http.StatusNotFound, domain.ErrNotFound)
		return nil, false
	}
	return s, true
}

func (g *gateway) feed(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	items := s.Store().Items()
	if items == nil {
		items = []domain.FeedItem{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, feedResponse{
		Context: s.Name(),
		Status:  s.TransportStatus().String(),
		Error:   domain.UserMessage(s.LastError()),
		Items:   items,
	})
}

func (g *gateway) status(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusResponse{
		Context: s.Name(),
		Status:  s.TransportStatus().String(),
		Size:    s.Store().Len(),
		Error:   domain.UserMessage(s.LastError()),
	})
}

func (g *gateway) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		g.fail(w, r, err)
		return
	}
	g.status(w, r)
}

func (g *gateway) create(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var in domain.NewItem
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		g.fail(w, r, &domain.ActionError{Action: domain.ActionCreate, Err: domain.ErrValidation})
		return
	}
	item, err := g.actions.Create(r.Context(), s.Store(), in)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, item)
}

func (g *gateway) like(w http.ResponseWriter, r *http.Request) {
	g.itemAction(w, r, domain.ActionLike, func(ctx context.Context, store *feed.Store, id int64) error {
		return g.actions.Like(ctx, store, id)
	})
}

func (g *gateway) comment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.fail(w, r, &domain.ActionError{Action: domain.ActionComment, Err: domain.ErrValidation})
		return
	}
	g.itemAction(w, r, domain.ActionComment, func(ctx context.Context, store *feed.Store, id int64) error {
		return g.actions.Comment(ctx, store, id, body.Content)
	})
}

func (g *gateway) setStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.fail(w, r, &domain.ActionError{Action: domain.ActionStatus, Err: domain.ErrValidation})
		return
	}
	g.itemAction(w, r, domain.ActionStatus, func(ctx context.Context, store *feed.Store, id int64) error {
		return g.actions.SetStatus(ctx, store, id, body.Status)
	})
}

func (g *gateway) remove(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		g.fail(w, r, &domain.ActionError{Action: domain.ActionDelete, Err: domain.ErrValidation})
		return
	}
	if err := g.actions.Delete(r.Context(), s.Store(), id); err != nil {
		g.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// itemAction выполняет действие над записью и возвращает её актуальное состояние.
func (g *gateway) itemAction(w http.ResponseWriter, r *http.Request, action domain.Action, do func(context.Context, *feed.Store, int64) error) {
	s, ok := g.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		g.fail(w, r, &domain.ActionError{Action: action, Err: domain.ErrValidation})
		return
	}
	if err := do(r.Context(), s.Store(), id); err != nil {
		g.fail(w, r, err)
		return
	}
	item, ok := s.Store().Get(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, item)
}

func (g *gateway) calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := calendar.ParseMonth(q.Get("month"), g.now(), g.loc)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, domain.ErrValidation)
		return
	}
	grid := calendar.BuildMonthGrid(month, g.firstWeekday)

	var ref domain.ReferenceData
	if g.reference != nil {
		if ref, err = g.reference.Load(r.Context()); err != nil {
			g.log.Warn().Err(err).Msg("gateway: справочники недоступны, фильтр без имён")
		}
	}
	filter := domain.FilterState{
		Query:      q.Get("q"),
		SpeakerIDs: listParam(q, "speaker"),
		KitabIDs:   listParam(q, "kitab"),
		MasjidIDs:  listParam(q, "masjid"),
		BidangIlmu: listParam(q, "bidang"),
	}
	events := calendar.FilterEvents(g.events(r.Context(), grid), filter, ref)
	groups := calendar.GroupByDay(events, g.loc)

	resp := calendarResponse{
		Month:        month.Format("2006-01"),
		FirstWeekday: g.firstWeekday.String(),
		Grid:         grid,
		Counts:       calendar.DaysWithEvents(grid, groups),
		Days:         []calendarDay{},
	}
	for _, cell := range grid {
		if day := groups[cell.DateKey]; len(day) > 0 {
			resp.Days = append(resp.Days, calendarDay{DateKey: cell.DateKey, Events: day})
		}
	}
	httpinfra.WriteJSON(w, http.StatusOK, resp)
}

// events собирает записи всех живых контекстов и, если есть архив, события месяца из него.
// Живые записи имеют приоритет над архивными с тем же id.
func (g *gateway) events(ctx context.Context, grid []domain.CalendarCell) []domain.FeedItem {
	seen := make(map[int64]struct{})
	var out []domain.FeedItem
	add := func(item domain.FeedItem) {
		if item.ID > 0 {
			if _, dup := seen[item.ID]; dup {
				return
			}
			seen[item.ID] = struct{}{}
		}
		out = append(out, item)
	}
	for _, name := range g.order {
		for _, item := range g.sessions[name].Store().Items() {
			add(item)
		}
	}
	if g.archive != nil && len(grid) > 0 {
		from := grid[0].Date
		to := grid[len(grid)-1].Date.AddDate(0, 0, 1)
		archived, err := g.archive.ListEvents(ctx, from, to)
		if err != nil {
			g.log.Warn().Err(err).Msg("gateway: архив событий недоступен")
		}
		for _, item := range archived {
			add(item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (g *gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpinfra.StatusFor(err)
	ev := g.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = g.log.Error()
	}
	ev.Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("gateway: действие не выполнено")
	httpinfra.WriteError(w, status, err)
}

// listParam собирает значения из повторяющихся параметров и списков через запятую.
func listParam(q map[string][]string, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
