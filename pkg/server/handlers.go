// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Thermoquad/provisioner/pkg/flasher"
	"github.com/Thermoquad/provisioner/pkg/identity"
	"github.com/Thermoquad/provisioner/pkg/ports"
	"github.com/Thermoquad/provisioner/pkg/registry"
)

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type stateResponse struct {
	Status  flasher.Status `json:"status"`
	Busy    bool           `json:"busy"`
	Logs    string         `json:"logs"`
	Session string         `json:"session,omitempty"`
	Error   string         `json:"last_error,omitempty"`
}

type lookupResponse struct {
	OK           bool   `json:"ok"`
	Batch        int    `json:"batch"`
	Year         *int   `json:"year,omitempty"`
	Month        *int   `json:"month,omitempty"`
	SerialNumber int    `json:"serial_number"`
	Serial       string `json:"serial"`
	SSID         string `json:"ssid"`
	Password     string `json:"password"`
}

type portsResponse struct {
	OK    bool         `json:"ok"`
	Ports []ports.Port `json:"ports"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := assets.ReadFile("index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.orch.State()
	writeJSON(w, http.StatusOK, stateResponse{
		Status:  st.Status,
		Busy:    st.Busy,
		Logs:    st.Logs,
		Session: st.SessionID,
		Error:   st.LastError,
	})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, portsResponse{OK: true, Ports: s.ports.List()})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.resolver.Resolve(s.formatter, req)
	if err != nil {
		s.logResolveError("lookup", req, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := lookupResponse{
		OK:           true,
		Batch:        id.Batch,
		SerialNumber: id.SerialNumber,
		Serial:       id.Serial,
		SSID:         id.SSID,
		Password:     id.Password,
	}
	if id.HasDate {
		resp.Year = &id.Year
		resp.Month = &id.Month
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlash(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed form body.")
		return
	}
	req, err := s.parseRequest(r.PostForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, message := s.orch.StartRequest(s.resolver, s.formatter, req, r.PostForm.Get("port"))
	if !ok {
		s.logger.Info("flash request rejected",
			zap.Int("batch", req.Batch),
			zap.Int("serial", req.Serial),
			zap.String("reason", message))
		writeError(w, http.StatusBadRequest, message)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// parseRequest reads batch, serial and, for date-stamped identifiers, year
// and month.
func (s *Server) parseRequest(values url.Values) (identity.Request, error) {
	dated := s.formatter.Variant == identity.DateStamped

	intValue := func(key string) (int, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(values.Get(key)))
		return n, err == nil
	}

	batch, okB := intValue("batch")
	serial, okS := intValue("serial")
	if !dated {
		if !okB || !okS {
			return identity.Request{}, errors.New("Batch and serial must be integers.")
		}
		return identity.Request{Batch: batch, Serial: serial}, nil
	}

	year, okY := intValue("year")
	month, okM := intValue("month")
	if !okB || !okS || !okY || !okM {
		return identity.Request{}, errors.New("Batch, year, month, and serial must be integers.")
	}
	return identity.Request{Batch: batch, Serial: serial, Year: year, Month: month, HasDate: true}, nil
}

func (s *Server) logResolveError(op string, req identity.Request, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("batch", req.Batch),
		zap.Int("serial", req.Serial),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, identity.ErrValidation):
		s.logger.Debug("invalid identity request", fields...)
	case errors.Is(err, registry.ErrNotFound):
		s.logger.Info("password lookup miss", fields...)
	default:
		s.logger.Warn("identity resolution failed", fields...)
	}
}
