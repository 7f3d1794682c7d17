// Package transporthttp exposes the service over a stdlib HTTP mux: the
// alert read API, ingest endpoint, report lifecycle, mailing-list management,
// and the operational healthz/metrics pair.
package transporthttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"travelriskbackend/internal/alerts"
	"travelriskbackend/internal/mailing"
	"travelriskbackend/internal/report"
	"travelriskbackend/internal/store"
)

const defaultPageLimit = 50

type Server struct {
	alerts     store.AlertStore
	ingest     *alerts.IngestSource
	scheduler  *alerts.Scheduler
	reports    *report.Store
	dispatcher *report.Dispatcher
	mailing    *mailing.Store
	logger     *slog.Logger
}

func NewServer(
	alertStore store.AlertStore,
	ingest *alerts.IngestSource,
	scheduler *alerts.Scheduler,
	reports *report.Store,
	dispatcher *report.Dispatcher,
	lists *mailing.Store,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		alerts:     alertStore,
		ingest:     ingest,
		scheduler:  scheduler,
		reports:    reports,
		dispatcher: dispatcher,
		mailing:    lists,
		logger:     logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /alerts", s.listAlerts)
	mux.HandleFunc("GET /alerts/{id}", s.getAlert)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("GET /status", s.status)

	mux.HandleFunc("POST /reports", s.createReport)
	mux.HandleFunc("GET /reports", s.listReports)
	mux.HandleFunc("GET /reports/{id}", s.getReport)
	mux.HandleFunc("POST /reports/{id}/submit", s.submitReport)
	mux.HandleFunc("POST /reports/{id}/approve", s.approveReport)
	mux.HandleFunc("POST /reports/{id}/reject", s.rejectReport)
	mux.HandleFunc("POST /reports/{id}/dispatch", s.dispatchReport)
	mux.HandleFunc("GET /dispatch-tasks/{id}", s.getDispatchTask)

	mux.HandleFunc("POST /mailing-lists", s.createList)
	mux.HandleFunc("GET /mailing-lists", s.listLists)
	mux.HandleFunc("GET /mailing-lists/{id}", s.getList)
	mux.HandleFunc("DELETE /mailing-lists/{id}", s.deleteList)
	mux.HandleFunc("GET /mailing-lists/{id}/subscribers", s.listSubscribers)
	mux.HandleFunc("POST /mailing-lists/{id}/subscribers", s.addSubscriber)
	mux.HandleFunc("POST /mailing-lists/{id}/import", s.importSubscribers)
	mux.HandleFunc("DELETE /subscribers/{id}", s.deleteSubscriber)

	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduler.State())
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	query, err := parseAlertQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := s.alerts.List(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list alerts failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": items,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.alerts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "load alert failed")
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ingest disabled")
		return
	}

	var payload struct {
		SourceID     string             `json:"source_id"`
		Title        string             `json:"title"`
		Body         string             `json:"body"`
		URL          string             `json:"url"`
		LocationText string             `json:"location_text"`
		PublishedAt  string             `json:"published_at"`
		Signals      map[string]float64 `json:"signals"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Title == "" || payload.URL == "" {
		s.writeError(w, http.StatusBadRequest, "title and url are required")
		return
	}

	published := time.Now().UTC()
	if payload.PublishedAt != "" {
		ts, err := time.Parse(time.RFC3339, payload.PublishedAt)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "published_at must be RFC3339")
			return
		}
		published = ts
	}

	stored := s.ingest.Add(alerts.Candidate{
		SourceID:     payload.SourceID,
		Title:        payload.Title,
		Body:         payload.Body,
		URL:          payload.URL,
		LocationText: payload.LocationText,
		PublishedAt:  published,
		Signals:      payload.Signals,
	})
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"source_id":    stored.SourceID,
		"published_at": stored.PublishedAt,
	})
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title           string `json:"title"`
		GeographicScope string `json:"geographic_scope"`
		DateRangeStart  string `json:"date_range_start"`
		DateRangeEnd    string `json:"date_range_end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	to := time.Now().UTC()
	from := to.Add(-7 * 24 * time.Hour)
	if payload.DateRangeStart != "" {
		ts, err := time.Parse(time.RFC3339, payload.DateRangeStart)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date_range_start must be RFC3339")
			return
		}
		from = ts
	}
	if payload.DateRangeEnd != "" {
		ts, err := time.Parse(time.RFC3339, payload.DateRangeEnd)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date_range_end must be RFC3339")
			return
		}
		to = ts
	}

	snapshot, _, err := s.alerts.List(r.Context(), store.Query{
		Country: scopeCountry(payload.GeographicScope),
		From:    from,
		To:      to,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "load alerts failed")
		return
	}

	rep, err := s.reports.Generate(r.Context(), payload.Title, payload.GeographicScope, from, to, snapshot)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list reports failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) approveReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) rejectReport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Comment string `json:"comment"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	rep, err := s.reports.Reject(r.Context(), r.PathValue("id"), payload.Comment)
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) dispatchReport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MailingListIDs []string `json:"mailing_list_ids"`
		AutoMatch      bool     `json:"auto_match"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	task, err := s.dispatcher.Dispatch(r.Context(), r.PathValue("id"), mailing.MatchRequest{
		ExplicitListIDs: payload.MailingListIDs,
		AutoMatch:       payload.AutoMatch,
	})
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) getDispatchTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.dispatcher.Task(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) createList(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name              string   `json:"name"`
		Description       string   `json:"description"`
		GeographicRegions []string `json:"geographic_regions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	list, err := s.mailing.CreateList(r.Context(), payload.Name, payload.Description, payload.GeographicRegions)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, list)
}

func (s *Server) listLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.mailing.Lists(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list mailing lists failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"mailing_lists": lists})
}

func (s *Server) getList(w http.ResponseWriter, r *http.Request) {
	list, err := s.mailing.GetList(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeMailingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.mailing.DeleteList(r.Context(), r.PathValue("id")); err != nil {
		s.writeMailingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.mailing.SubscribersOf(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeMailingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"subscribers": subs})
}

func (s *Server) addSubscriber(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email        string `json:"email"`
		Name         string `json:"name"`
		Organization string `json:"organization"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sub, err := s.mailing.AddSubscriber(r.Context(), r.PathValue("id"), payload.Email, payload.Name, payload.Organization)
	if err != nil {
		s.writeMailingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := s.mailing.DeleteSubscriber(r.Context(), r.PathValue("id")); err != nil {
		s.writeMailingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importSubscribers accepts the CSV either as a multipart "file" field or as
// the raw request body.
func (s *Server) importSubscribers(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		reader = file
	}

	result, err := s.mailing.ImportCSV(r.Context(), r.PathValue("id"), reader)
	if err != nil {
		s.writeMailingError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrReportNotFound):
		s.writeError(w, http.StatusNotFound, "report not found")
	case errors.Is(err, report.ErrInvalidStateTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, report.ErrAlreadySent):
		s.writeError(w, http.StatusConflict, "report already sent")
	case errors.Is(err, report.ErrNoRecipients):
		s.writeError(w, http.StatusUnprocessableEntity, "no recipients resolved")
	default:
		s.writeError(w, http.StatusInternalServerError, "report operation failed")
	}
}

func (s *Server) writeMailingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mailing.ErrListNotFound):
		s.writeError(w, http.StatusNotFound, "mailing list not found")
	case errors.Is(err, mailing.ErrSubscriberNotFound):
		s.writeError(w, http.StatusNotFound, "subscriber not found")
	case errors.Is(err, mailing.ErrDuplicateEmail):
		s.writeError(w, http.StatusConflict, "email already subscribed")
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func parseAlertQuery(r *http.Request) (store.Query, error) {
	values := r.URL.Query()
	query := store.Query{
		Country: values.Get("country"),
		Region:  values.Get("region"),
		Search:  values.Get("search"),
		SortBy:  values.Get("sort_by"),
		Desc:    values.Get("order") != "asc",
		Limit:   defaultPageLimit,
	}

	if v := values.Get("category"); v != "" {
		category, ok := alerts.ParseCategory(v)
		if !ok {
			return store.Query{}, errors.New("unknown category")
		}
		query.Category = category
	}
	if v := values.Get("min_severity"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 5 {
			return store.Query{}, errors.New("min_severity must be 1-5")
		}
		query.MinSeverity = parsed
	}
	if v := values.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return store.Query{}, errors.New("from must be RFC3339")
		}
		query.From = ts
	}
	if v := values.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return store.Query{}, errors.New("to must be RFC3339")
		}
		query.To = ts
	}
	if v := values.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			query.Limit = parsed
		}
	}
	if v := values.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}
	return query, nil
}

// scopeCountry narrows the snapshot query when the scope names a single
// country; "Global" and empty scopes read everything.
func scopeCountry(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.EqualFold(scope, mailing.GlobalRegion) {
		return ""
	}
	return scope
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
