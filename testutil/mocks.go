// Package testutil holds shared fakes for package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockEmoteServer mocks the emote directory API. Unregistered paths answer 404.
type MockEmoteServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockEmoteServer creates a mock directory that is closed when the test ends.
func NewMockEmoteServer(t *testing.T) *MockEmoteServer {
	t.Helper()
	m := &MockEmoteServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.hits[key]++
		handler, ok := m.handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for an exact path.
func (m *MockEmoteServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Hits returns how many requests reached path.
func (m *MockEmoteServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// MockGlobalEmotes answers /emotes with the given records.
func (m *MockEmoteServer) MockGlobalEmotes(records []map[string]any) {
	m.Handle("/emotes", jsonHandler(records))
}

// MockChannel answers /channels/{name} with the given id (number or string).
func (m *MockEmoteServer) MockChannel(name string, id any) {
	m.Handle("/channels/"+name, jsonHandler(map[string]any{"id": id, "slug": name}))
}

// MockChannelEmotes answers /channels/{id}/emotes with the given records.
func (m *MockEmoteServer) MockChannelEmotes(id string, records []map[string]any) {
	m.Handle("/channels/"+id+"/emotes", jsonHandler(records))
}

// MockStatus makes path answer with a bare status code.
func (m *MockEmoteServer) MockStatus(path string, status int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}
