package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/minute/internal/pipeline"
	"github.com/MikeSquared-Agency/minute/internal/reconcile"
	"github.com/MikeSquared-Agency/minute/internal/store"
)

type Server struct {
	router *chi.Mux
	port   int
	store  *store.Store
	pipe   *pipeline.Pipeline
}

func NewServer(port int, st *store.Store, pipe *pipeline.Pipeline) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		store:  st,
		pipe:   pipe,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/minute/status", s.status)
	router.Get("/api/v1/threads/{threadID}/brief", s.getBrief)
	router.Get("/api/v1/threads/{threadID}/manifest", s.getManifest)
	router.Get("/api/v1/threads/{threadID}/changelog", s.getChangelog)
	router.Get("/api/v1/threads/{threadID}/items", s.getItems)
	router.Post("/api/v1/items/{itemID}/confirm", s.confirmItem)
	router.Post("/api/v1/items/{itemID}/reject", s.rejectItem)
	router.Patch("/api/v1/items/{itemID}", s.editItem)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "minute",
		"status": "active",
	})
}

func (s *Server) getBrief(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	doc, err := s.store.LatestBrief(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no brief for thread")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) getManifest(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	entries, err := s.store.LatestManifest(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no manifest for thread")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getChangelog(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	changes, err := s.store.ListChangelog(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) getItems(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	items, err := s.store.ListItems(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) confirmItem(w http.ResponseWriter, r *http.Request) {
	s.applyVerdict(w, r, "confirm", nil)
}

func (s *Server) rejectItem(w http.ResponseWriter, r *http.Request) {
	s.applyVerdict(w, r, "reject", nil)
}

func (s *Server) editItem(w http.ResponseWriter, r *http.Request) {
	var patch reconcile.FieldPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch body")
		return
	}
	s.applyVerdict(w, r, "edit", &patch)
}

func (s *Server) applyVerdict(w http.ResponseWriter, r *http.Request, verdict string, patch *reconcile.FieldPatch) {
	id, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if err := s.pipe.ApplyVerdict(r.Context(), id, verdict, patch); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeError(w, http.StatusNotFound, "item not found")
		case errors.Is(err, reconcile.ErrTerminal):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
