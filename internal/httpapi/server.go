// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package httpapi exposes the expense service over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// ActorResolver authenticates a request and returns the acting user.
// Implementations return expense.ErrUnauthenticated when credentials are
// absent or wrong.
type ActorResolver interface {
	Resolve(r *http.Request) (expense.Actor, error)
}

// Server is the HTTP front of the expense service.
type Server struct {
	svc      *expense.Service
	resolver ActorResolver
	logger   *slog.Logger
	router   chi.Router
}

// NewServer builds the router. The trace-id middleware runs first so every
// downstream component, including panic recovery, sees the correlation id.
func NewServer(svc *expense.Service, resolver ActorResolver, logger *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		resolver: resolver,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(middleware.Recoverer)

	r.Route("/expenses", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleSearch)
		r.Post("/{id}/submit", s.handleSubmit)
		r.Post("/{id}/approve", s.handleApprove)
		r.Post("/{id}/reject", s.handleReject)
		r.Get("/{id}/audit-logs", s.handleAuditLogs)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, validationFailure("body", "malformed JSON body"))
		return
	}

	created, err := s.svc.Create(r.Context(), actor, expense.CreateInput{
		Title:    req.Title,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/expenses/%d", created.ID))
	writeJSON(w, http.StatusCreated, toExpenseResponse(created))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.svc.Submit(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := versionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.svc.Approve(r.Context(), id, version, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := versionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, validationFailure("body", "malformed JSON body"))
		return
	}

	updated, err := s.svc.Reject(r.Context(), id, version, req.Reason, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(updated))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	criteria, err := parseCriteria(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page := expense.Page{
		Number: intQuery(r, "page", 1),
		Size:   intQuery(r, "size", expense.DefaultPageSize),
	}

	result, err := s.svc.Search(r.Context(), actor, criteria, r.URL.Query().Get("sort"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPagedResponse(result))
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, err := s.resolver.Resolve(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries, err := s.svc.GetAuditLog(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, validationFailure("id", "must be a positive integer")
	}
	return id, nil
}

// versionParam reads the mandatory optimistic-lock version from the query
// string. Absent or malformed values are caller errors, not conflicts.
func versionParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return 0, validationFailure("version", "is required")
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version < 0 {
		return 0, validationFailure("version", "must be a non-negative integer")
	}
	return version, nil
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

const dateLayout = "2006-01-02"

// parseCriteria converts query parameters into search criteria. Date bounds
// are whole days: "to" extends to the end of its day so the range is
// inclusive.
func parseCriteria(r *http.Request) (expense.SearchCriteria, error) {
	q := r.URL.Query()
	var criteria expense.SearchCriteria

	criteria.Title = strings.TrimSpace(q.Get("title"))

	if raw := q.Get("status"); raw != "" {
		status := expense.Status(strings.ToUpper(raw))
		if !status.Valid() {
			return criteria, validationFailure("status", "unknown status")
		}
		criteria.Status = &status
	}
	if raw := q.Get("applicantId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return criteria, validationFailure("applicantId", "must be a positive integer")
		}
		criteria.ApplicantID = &id
	}
	if raw := q.Get("amountMin"); raw != "" {
		min, err := decimal.NewFromString(raw)
		if err != nil {
			return criteria, validationFailure("amountMin", "must be a number")
		}
		criteria.AmountMin = &min
	}
	if raw := q.Get("amountMax"); raw != "" {
		max, err := decimal.NewFromString(raw)
		if err != nil {
			return criteria, validationFailure("amountMax", "must be a number")
		}
		criteria.AmountMax = &max
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return criteria, validationFailure("from", "must be a date in YYYY-MM-DD form")
		}
		criteria.SubmittedFrom = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return criteria, validationFailure("to", "must be a date in YYYY-MM-DD form")
		}
		endOfDay := to.Add(24*time.Hour - time.Nanosecond)
		criteria.SubmittedTo = &endOfDay
	}
	return criteria, nil
}

// Run serves the API until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
