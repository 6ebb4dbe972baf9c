package emotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/BaherKh1/KickChatViewer/testutil"
)

func TestFetchScenarios(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m *testutil.MockEmoteServer)
		channel string
		want    Mapping
	}{
		{
			name: "channel overrides global",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockGlobalEmotes([]map[string]any{{"name": "LUL", "url": "a"}})
				m.MockChannel("xqc", 5)
				m.MockChannelEmotes("5", []map[string]any{{"name": "LUL", "url": "b"}})
			},
			channel: "xqc",
			want:    Mapping{":lul:": "b"},
		},
		{
			name: "global 500 still loads channel emotes",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockStatus("/emotes", http.StatusInternalServerError)
				m.MockChannel("xqc", 5)
				m.MockChannelEmotes("5", []map[string]any{{"name": "Pog", "images": map[string]string{"url_1x": "p1"}}})
			},
			channel: "xqc",
			want:    Mapping{":pog:": "p1"},
		},
		{
			name: "everything fails yields empty mapping",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockStatus("/emotes", http.StatusInternalServerError)
				m.MockStatus("/channels/xqc", http.StatusBadGateway)
			},
			channel: "xqc",
			want:    Mapping{},
		},
		{
			name: "unresolvable channel keeps global emotes",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockGlobalEmotes([]map[string]any{{"name": "Kappa", "src": "k"}})
			},
			channel: "nobody",
			want:    Mapping{":kappa:": "k"},
		},
		{
			name: "channel emote failure keeps global emotes",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockGlobalEmotes([]map[string]any{{"name": "Kappa", "url": "k"}})
				m.MockChannel("xqc", "abc")
				m.MockStatus("/channels/abc/emotes", http.StatusServiceUnavailable)
			},
			channel: "xqc",
			want:    Mapping{":kappa:": "k"},
		},
		{
			name: "string id and data wrapper",
			setup: func(m *testutil.MockEmoteServer) {
				m.Handle("/emotes", func(w http.ResponseWriter, r *http.Request) {
					_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"name": "Wave", "url": "w"}}})
				})
				m.MockChannel("foo", "77")
				m.MockChannelEmotes("77", []map[string]any{{"name": "FooHype", "images": map[string]string{"url_3x": "f3", "url_1x": "f1"}}})
			},
			channel: "foo",
			want:    Mapping{":wave:": "w", ":foohype:": "f3"},
		},
		{
			name: "mistyped record does not discard its neighbours",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockGlobalEmotes([]map[string]any{
					{"name": "LUL", "url": "a"},
					{"name": 42},
					{"name": "Kappa", "images": map[string]string{"url_1x": "k"}},
					{"name": "Bad", "images": []string{"x"}},
					{"name": "Num", "url": 7},
				})
				m.MockChannel("xqc", 5)
				m.Handle("/channels/5/emotes", func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"data":[{"name":true},{"name":"Pog","src":"p"}]}`))
				})
			},
			channel: "xqc",
			want:    Mapping{":lul:": "a", ":kappa:": "k", ":pog:": "p"},
		},
		{
			name: "no channel only loads global",
			setup: func(m *testutil.MockEmoteServer) {
				m.MockGlobalEmotes([]map[string]any{{"name": "LUL", "url": "a"}})
			},
			channel: "",
			want:    Mapping{":lul:": "a"},
		},
		{
			name: "malformed json degrades",
			setup: func(m *testutil.MockEmoteServer) {
				m.Handle("/emotes", func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte("<html>oops</html>"))
				})
				m.Handle("/channels/xqc", func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"slug":"xqc"}`))
				})
			},
			channel: "xqc",
			want:    Mapping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockEmoteServer(t)
			tt.setup(m)
			c := &Client{BaseURL: m.URL}

			got := c.Fetch(context.Background(), tt.channel)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Fetch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchIsRepeatable(t *testing.T) {
	m := testutil.NewMockEmoteServer(t)
	m.MockGlobalEmotes([]map[string]any{{"name": "LUL", "url": "a"}, {"name": "Kappa", "url": "k"}})
	m.MockChannel("xqc", 5)
	m.MockChannelEmotes("5", []map[string]any{{"name": "LUL", "url": "b"}})
	c := &Client{BaseURL: m.URL}

	first := c.Fetch(context.Background(), "xqc")
	second := c.Fetch(context.Background(), "xqc")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("fetches differ: %v vs %v", first, second)
	}
	// not cached: every fetch hits the directory again
	if hits := m.Hits("/emotes"); hits != 2 {
		t.Errorf("/emotes hits = %d, want 2", hits)
	}
}

func TestFetchWithoutBaseURL(t *testing.T) {
	c := &Client{}
	got := c.Fetch(context.Background(), "xqc")
	if got == nil || len(got) != 0 {
		t.Errorf("Fetch() = %#v, want empty mapping", got)
	}
}

func TestFetchHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := &Client{BaseURL: srv.URL}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Mapping, 1)
	go func() { done <- c.Fetch(ctx, "xqc") }()
	cancel()

	select {
	case got := <-done:
		if len(got) != 0 {
			t.Errorf("Fetch() after cancel = %v, want empty", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := &Client{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}
	start := time.Now()
	got := c.Fetch(context.Background(), "xqc")
	if len(got) != 0 {
		t.Errorf("Fetch() = %v, want empty", got)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Fetch ignored timeout")
	}
}

func TestResolveChannelIDEscapesName(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 9})
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	id, err := c.ResolveChannelID(context.Background(), "a b/c")
	if err != nil {
		t.Fatalf("ResolveChannelID() error = %v", err)
	}
	if id != "9" {
		t.Errorf("id = %q, want 9", id)
	}
	if gotPath != "/channels/a%20b%2Fc" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{
		`5`:      "5",
		`"5"`:    "5",
		`" x "`:  "x",
		`12.5`:   "12.5",
		`null`:   "",
		``:       "",
		`{}`:     "",
		`[1, 2]`: "",
	}
	for in, want := range tests {
		if got := normalizeID(json.RawMessage(in)); got != want {
			t.Errorf("normalizeID(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestAuthHTTPClientAttachesBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	var auth string
	mux.HandleFunc("/emotes", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"name": "LUL", "url": "a"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := &Client{BaseURL: srv.URL, HTTPClient: AuthHTTPClient(ctx, "id", "secret", srv.URL+"/oauth/token")}
	got := c.Fetch(ctx, "")
	if got[":lul:"] != "a" {
		t.Errorf("Fetch() = %v", got)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", auth)
	}
}
