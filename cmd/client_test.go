// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/provisioner/pkg/stream"
)

func TestParseServerURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{"http://127.0.0.1:8080/some/page?x=1", "http://127.0.0.1:8080", false},
		{"127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{"  https://flasher.local  ", "https://flasher.local", false},
		{"ws://127.0.0.1:8080", "", true},
		{"", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseServerURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws"},
		{"https://flasher.local", "wss://flasher.local/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			base, err := parseServerURL(tt.base)
			if err != nil {
				t.Fatal(err)
			}
			if got := streamURL(base); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if base.Path != "" {
				t.Error("streamURL modified its argument")
			}
		})
	}
}

func TestStartFlash(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantReject string
	}{
		{"accepted", http.StatusOK, `{"ok":true}`, false, ""},
		{"rejected", http.StatusBadRequest, `{"ok":false,"error":"Flash already in progress."}`, true, "Flash already in progress."},
		{"not json", http.StatusInternalServerError, `oops`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got url.Values
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/flash" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				r.ParseForm()
				got = r.PostForm
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			base, _ := parseServerURL(ts.URL)
			form := url.Values{"batch": {"1"}, "serial": {"2"}, "port": {"auto"}}
			err := startFlash(context.Background(), ts.Client(), base, form)

			if got.Get("serial") != "2" || got.Get("port") != "auto" {
				t.Errorf("form = %v", got)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var rejected *RejectedError
			if tt.wantReject != "" {
				if !errors.As(err, &rejected) || rejected.Message != tt.wantReject || rejected.Status != tt.status {
					t.Errorf("err = %#v, want rejection %q", err, tt.wantReject)
				}
			} else if errors.As(err, &rejected) {
				t.Errorf("unexpected rejection %v", err)
			}
		})
	}
}

func TestStateStream(t *testing.T) {
	frame, err := stream.Encode(stream.Snapshot{Code: "ready", Message: "Ready to flash"})
	if err != nil {
		t.Fatal(err)
	}

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
		conn.WriteMessage(websocket.BinaryMessage, frame)
	}))
	defer ts.Close()

	base, _ := parseServerURL(ts.URL)
	st, err := openStream(context.Background(), base, false)
	if err != nil {
		t.Fatalf("openStream: %v", err)
	}
	defer st.Close()

	snap, err := st.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if snap.Code != "ready" || snap.Message != "Ready to flash" {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := st.Next(); err == nil {
		t.Fatal("expected error after server closed")
	}
	if _, err := st.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("err = %v, want ErrStreamClosed", err)
	}
}

func TestOpenStream_Refused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	base, _ := parseServerURL(ts.URL)
	if _, err := openStream(context.Background(), base, false); err == nil {
		t.Error("expected handshake failure")
	}
}
