package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "" {
			t.Errorf("expected no cookies, got %q", r.Header.Get("Cookie"))
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello"))
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(100, 10)

	body, err := c.Get(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body: got %q, want %q", body, "hello")
	}

	if _, err := c.Get(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := c.Get(context.Background(), srv.URL+"/boom"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestClientGetCancelled(t *testing.T) {
	c := NewClient(100, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "http://127.0.0.1:1/never"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
