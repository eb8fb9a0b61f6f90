package data

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iudanet/pitlane/pkg/api"
)

type serverCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeServer in-memory реализация REST контракта
type fakeServer struct {
	tables    map[string]map[string]map[string]any
	calls     []serverCall
	down      atomic.Bool
	assignIDs bool
	nextID    int
	mu        sync.Mutex
}

func newFakeServer() *fakeServer {
	return &fakeServer{tables: make(map[string]map[string]map[string]any)}
}

func (s *fakeServer) seed(table string, obj map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]map[string]any)
	}
	s.tables[table][fmt.Sprint(obj["id"])] = obj
}

func (s *fakeServer) writes() []serverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []serverCall
	for _, c := range s.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.down.Load() {
		// Обрываем соединение без ответа
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("hijacking not supported")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	if r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
		return
	}

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, serverCall{Method: r.Method, Path: r.URL.Path, Body: body})

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	table := parts[0]
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]map[string]any)
	}
	rows := s.tables[table]

	if invalid, _ := body["invalid"].(bool); invalid {
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Error: "validation_failed", Message: "record is invalid"})
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		ids := make([]string, 0, len(rows))
		for id := range rows {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		list := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			list = append(list, rows[id])
		}
		writeJSON(w, http.StatusOK, list)
	case r.Method == http.MethodGet:
		row, ok := rows[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not_found"})
			return
		}
		writeJSON(w, http.StatusOK, row)
	case r.Method == http.MethodPost:
		if s.assignIDs {
			s.nextID++
			body["id"] = fmt.Sprintf("srv-%d", s.nextID)
		}
		rows[fmt.Sprint(body["id"])] = body
		writeJSON(w, http.StatusCreated, body)
	case r.Method == http.MethodPut:
		body["id"] = parts[1]
		rows[parts[1]] = body
		writeJSON(w, http.StatusOK, body)
	case r.Method == http.MethodPatch:
		row, ok := rows[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "not_found"})
			return
		}
		for k, v := range body {
			row[k] = v
		}
		writeJSON(w, http.StatusOK, row)
	case r.Method == http.MethodDelete:
		delete(rows, parts[1])
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
