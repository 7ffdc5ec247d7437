// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/provisioner/pkg/stream"
)

var (
	// Remote server flags
	serverURL   string
	noSSLVerify bool
)

// addServerFlags registers the flags shared by commands that talk to a
// running serve instance.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&serverURL, "url", "u", "", "Server URL (http:// or https://)")
	cmd.Flags().BoolVar(&noSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (https:// only)")
	cmd.MarkFlagRequired("url")
}

// ErrStreamClosed is returned by Next after the stream has failed.
var ErrStreamClosed = errors.New("state stream closed")

// parseServerURL validates raw and strips any trailing path. A missing
// scheme means http.
func parseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("server URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use http:// or https://)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// streamURL is the WebSocket endpoint for base.
func streamURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

func tlsConfig(base *url.URL, skipVerify bool) *tls.Config {
	if base.Scheme != "https" {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: skipVerify}
}

// StateStream reads CBOR state snapshots from a server's /ws endpoint.
type StateStream struct {
	conn   *websocket.Conn
	closed bool
}

// openStream dials the server's state stream.
func openStream(ctx context.Context, base *url.URL, skipVerify bool) (*StateStream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConfig(base, skipVerify),
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, streamURL(base), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}
	return &StateStream{conn: conn}, nil
}

// Next blocks for the next snapshot. Text frames are skipped.
func (s *StateStream) Next() (stream.Snapshot, error) {
	if s.closed {
		return stream.Snapshot{}, ErrStreamClosed
	}
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closed = true
			return stream.Snapshot{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return stream.Decode(data)
	}
}

func (s *StateStream) Close() error {
	return s.conn.Close()
}

// flashReply is the JSON body of POST /flash.
type flashReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// RejectedError is a flash request the server refused.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// startFlash posts form to /flash.
func startFlash(ctx context.Context, client *http.Client, base *url.URL, form url.Values) error {
	target := *base
	target.Path = "/flash"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("flash request failed: %w", err)
	}
	defer resp.Body.Close()

	var reply flashReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %v", resp.StatusCode, err)
	}
	if !reply.OK {
		return &RejectedError{Status: resp.StatusCode, Message: reply.Error}
	}
	return nil
}

func httpClient(base *url.URL, skipVerify bool) *http.Client {
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsConfig(base, skipVerify), Proxy: http.ProxyFromEnvironment},
	}
}
