package lark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New("app-id", "app-secret", zap.NewNop())
	client.APIURL = server.URL

	return client, server
}

func TestAppAccessToken(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != tokenPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		if payload["app_id"] != "app-id" || payload["app_secret"] != "app-secret" {
			t.Errorf("unexpected credentials payload: %v", payload)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"code":             0,
			"msg":              "ok",
			"app_access_token": "t-123",
			"expire":           7200,
		})
	})

	token, err := client.AppAccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if token.Value != "t-123" {
		t.Fatalf("unexpected token value: %q", token.Value)
	}
	if token.ExpireSeconds != 7200 {
		t.Fatalf("unexpected expire: %d", token.ExpireSeconds)
	}
}

func TestAppAccessTokenPlatformError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 99991663,
			"msg":  "app not found",
		})
	})

	_, err := client.AppAccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error on non-zero platform code")
	}
	if !strings.Contains(err.Error(), "99991663") {
		t.Fatalf("expected platform code in error, got: %v", err)
	}
}

func TestDocContent(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != contentPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		q := r.URL.Query()
		if q.Get("doc_token") != "doc-1" {
			t.Errorf("unexpected doc_token: %q", q.Get("doc_token"))
		}
		if q.Get("doc_type") != "docx" || q.Get("content_type") != "markdown" {
			t.Errorf("unexpected query: %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer t-123" {
			t.Errorf("unexpected authorization header: %q", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]string{"content": "# rubric\nscore hard"},
		})
	})

	content, err := client.DocContent(context.Background(), "doc-1", "t-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content != "# rubric\nscore hard" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestDocContentBadStatus(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.DocContent(context.Background(), "doc-1", "t-123"); err == nil {
		t.Fatal("expected error on bad status")
	}
}
