package stub

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ohler55/ojg/oj"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
)

// Server exposes a Store over the hosted-service wire protocol.
type Server struct {
	store *Store
	table string
}

// NewServer wraps store under the given table name ("claims" when empty).
func NewServer(store *Store, table string) *Server {
	if table == "" {
		table = "claims"
	}
	return &Server{store: store, table: table}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/"+s.table, func(r chi.Router) {
		r.Get("/", s.handleSelect)
		r.Post("/", s.handleInsert)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := oj.Marshal(v)
	if err != nil {
		log.Printf("stub: encode response: %v", err)
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data) // safe to ignore
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	q := &remote.Query{}
	params := r.URL.Query()
	for _, f := range params["filter"] {
		c, err := remote.ParseCond(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q.Conds = append(q.Conds, c)
	}
	for _, g := range params["or"] {
		conds, err := remote.ParseOrGroup(g)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q.Any(conds...)
	}
	if o := params.Get("order"); o != "" {
		col, dir, ok := cutLast(o, ".")
		if !ok {
			http.Error(w, "malformed order", http.StatusBadRequest)
			return
		}
		q.OrderBy(col, dir == "desc")
	}
	if v := params.Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}
	if v := params.Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}

	rows, total, err := s.store.Select(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set(remote.TotalCountHeader, strconv.Itoa(total))
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var rec api.ClaimRecord
	if err := oj.Unmarshal(body, &rec); err != nil {
		http.Error(w, "malformed record", http.StatusBadRequest)
		return
	}
	if rec.OrderNo == "" {
		http.Error(w, "order_no is required", http.StatusUnprocessableEntity)
		return
	}
	stored, err := s.store.Insert(&rec)
	if errors.Is(err, ErrDuplicateOrderNo) {
		http.Error(w, "duplicate order_no", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var fields map[string]any
	if err := oj.Unmarshal(body, &fields); err != nil {
		http.Error(w, "malformed patch", http.StatusBadRequest)
		return
	}

	var expect time.Time
	if h := r.Header.Get("If-Unmodified-Since"); h != "" {
		expect, err = time.Parse(time.RFC3339Nano, h)
		if err != nil {
			http.Error(w, "malformed If-Unmodified-Since", http.StatusBadRequest)
			return
		}
	}

	n, _, err := s.store.Update(chi.URLParam(r, "id"), fields, expect)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrDuplicateOrderNo):
		http.Error(w, "duplicate order_no", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n == 0 {
		http.Error(w, "stale record", http.StatusPreconditionFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows_affected": n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.store.Delete(chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cutLast splits s at the last occurrence of sep.
func cutLast(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
