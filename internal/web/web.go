package web

import (
	"cmp"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"calimport/internal/config"
	"calimport/internal/export"
	"calimport/internal/ics"
	appLog "calimport/internal/log"
	"calimport/internal/model"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 7
	shutdownTimeout  = 5 * time.Second
)

// Snapshot is the result of one import of all sources.
type Snapshot struct {
	Documents []ics.Document
	UpdatedAt time.Time
}

// Appointments flattens the appointments of every document.
func (s Snapshot) Appointments() []model.Appointment {
	return ics.Appointments(s.Documents)
}

// Server serves the most recent Snapshot over HTTP.
type Server struct {
	cfg *config.Config
	loc *time.Location
	mux *http.ServeMux
	now func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewServer constructs a Server. loc is the zone used for date-only query
// parameters and the default event window.
func NewServer(cfg *config.Config, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg: cfg,
		loc: loc,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s
}

// SetSnapshot replaces the served data.
func (s *Server) SetSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *Server) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. An empty
// username or password disables it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calimport", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/appointments", s.handleAppointments)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("GET /api/export.xml", s.handleExportXCal)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type alarmDTO struct {
	Action        string `json:"action"`
	Description   string `json:"description,omitempty"`
	OffsetSeconds int64  `json:"offset_seconds"`
	Repeat        int    `json:"repeat,omitempty"`
	PauseSeconds  int64  `json:"pause_seconds,omitempty"`
}

type appointmentDTO struct {
	SourceID    string     `json:"source_id"`
	UID         string     `json:"uid"`
	Sequence    int        `json:"sequence"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Busy        bool       `json:"busy"`
	AllDay      bool       `json:"all_day"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	RRule       string     `json:"rrule,omitempty"`
	Alarms      []alarmDTO `json:"alarms,omitempty"`
	EventCount  int        `json:"event_count"`
}

type appointmentsResponse struct {
	Appointments []appointmentDTO `json:"appointments"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (s *Server) handleAppointments(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	apps := snap.Appointments()
	dtos := make([]appointmentDTO, 0, len(apps))
	for _, a := range apps {
		b := a.Basics
		dto := appointmentDTO{
			SourceID:    b.SourceID,
			UID:         b.UID,
			Sequence:    b.Sequence,
			Summary:     b.Summary,
			Description: b.Description,
			Location:    b.Location,
			Busy:        b.Busy,
			AllDay:      b.AllDay,
			Start:       b.Start.In(s.loc),
			End:         b.End.In(s.loc),
			EventCount:  len(a.Events),
		}
		if a.Recurrence != nil {
			dto.RRule = export.RuleText(*a.Recurrence)
		}
		for _, al := range a.Alarms {
			dto.Alarms = append(dto.Alarms, alarmDTO(al))
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, appointmentsResponse{Appointments: dtos, UpdatedAt: snap.UpdatedAt})
}

type eventDTO struct {
	SourceID string    `json:"source_id"`
	UID      string    `json:"uid"`
	Text     string    `json:"text"`
	AllDay   bool      `json:"all_day"`
	Busy     bool      `json:"busy"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type eventsResponse struct {
	Events     []eventDTO `json:"events"`
	RangeStart time.Time  `json:"range_start"`
	RangeEnd   time.Time  `json:"range_end"`
	TimeZone   string     `json:"timezone"`
}

// handleEvents returns the instances overlapping a window.
//
// GET /api/events?from=2024-01-01&to=2024-01-08
//   - from: RFC 3339 or YYYY-MM-DD, default start of today
//   - to:   RFC 3339 or YYYY-MM-DD, default from + 7 days
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := s.now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if v := q.Get("from"); v != "" {
		t, err := parseQueryTime(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, defaultRangeDays)
	if v := q.Get("to"); v != "" {
		t, err := parseQueryTime(v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = t
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	appLog.Debug("api events request", "from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))

	events := make([]eventDTO, 0)
	for _, a := range s.snapshot().Appointments() {
		for _, ev := range a.EventsBetween(from, to) {
			events = append(events, eventDTO{
				SourceID: a.Basics.SourceID,
				UID:      ev.UID,
				Text:     ev.Text,
				AllDay:   ev.AllDay,
				Busy:     a.Basics.Busy,
				Start:    ev.Start.In(s.loc),
				End:      ev.End.In(s.loc),
			})
		}
	}
	slices.SortStableFunc(events, func(a, b eventDTO) int {
		return cmp.Or(a.Start.Compare(b.Start), cmp.Compare(a.UID, b.UID))
	})

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:     events,
		RangeStart: from,
		RangeEnd:   to,
		TimeZone:   s.loc.String(),
	})
}

func parseQueryTime(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

type rejectedLineDTO struct {
	Line      string `json:"line"`
	Component string `json:"component"`
	Error     string `json:"error"`
}

type skipDTO struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

type documentDTO struct {
	SourceID     string            `json:"source_id"`
	Name         string            `json:"name,omitempty"`
	FromCache    bool              `json:"from_cache"`
	Error        string            `json:"error,omitempty"`
	Valid        bool              `json:"valid"`
	Problems     []string          `json:"problems,omitempty"`
	Rejected     []rejectedLineDTO `json:"rejected,omitempty"`
	Skipped      []skipDTO         `json:"skipped,omitempty"`
	Appointments int               `json:"appointments"`
}

type diagnosticsResponse struct {
	Documents []documentDTO `json:"documents"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	docs := make([]documentDTO, 0, len(snap.Documents))
	for _, d := range snap.Documents {
		dto := documentDTO{
			SourceID:     d.Source.ID,
			Name:         d.Source.Name,
			FromCache:    d.FromCache,
			Valid:        d.Report.Valid,
			Appointments: len(d.Appointments),
		}
		if d.Err != nil {
			dto.Error = d.Err.Error()
		}
		for _, p := range d.Report.Problems {
			dto.Problems = append(dto.Problems, p.String())
		}
		if d.Calendar != nil {
			for _, diag := range d.Calendar.Diagnostics {
				dto.Rejected = append(dto.Rejected, rejectedLineDTO{Line: diag.Line, Component: diag.Component, Error: diag.Err.Error()})
			}
		}
		for _, sk := range d.Skipped {
			dto.Skipped = append(dto.Skipped, skipDTO{UID: sk.UID, Reason: sk.Reason.Error()})
		}
		docs = append(docs, dto)
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Documents: docs, UpdatedAt: snap.UpdatedAt})
}

func (s *Server) exportOptions(r *http.Request) export.Options {
	expand, _ := strconv.ParseBool(r.URL.Query().Get("expand"))
	return export.Options{ProductID: s.cfg.ProductID, Now: s.now, Expand: expand}
}

// handleExportICS re-serializes every appointment as one calendar.
// ?expand=true writes one VEVENT per instance.
func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	body := export.ICS(s.snapshot().Appointments(), s.exportOptions(r))
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleExportXCal(w http.ResponseWriter, r *http.Request) {
	body, err := export.XCal(s.snapshot().Appointments(), s.exportOptions(r))
	if err != nil {
		appLog.Error("xcal export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	w.Header().Set("Content-Type", "application/calendar+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
