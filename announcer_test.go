package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAnnouncerPostsToRelay(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got <- body.Text
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := NewRelayAnnouncer(func() string { return srv.URL })
	defer a.Close()

	a.Announce("张三来电")
	select {
	case text := <-got:
		if text != "张三来电" {
			t.Errorf("relay got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay was not called")
	}
}

func TestAnnouncerPostErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"ok", http.StatusOK, `{"ok":true}`, ""},
		{"plain text", http.StatusOK, "done", ""},
		{"rejected", http.StatusOK, `{"ok":false,"error":"muted"}`, "muted"},
		{"server error", http.StatusInternalServerError, "boom", "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewRelayAnnouncer(func() string { return "" })
			defer a.Close()

			err := a.post(context.Background(), srv.URL, "hi")
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAnnounceAfterCloseDoesNotBlock(t *testing.T) {
	a := NewRelayAnnouncer(func() string { return "" })
	a.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < announceQueueLen*2; i++ {
			a.Announce("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked after Close")
	}
}
