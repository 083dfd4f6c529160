// Package api exposes the aggregation pipeline over HTTP. Every
// response is wrapped in the {"success", "data", "error"} envelope the
// web frontend consumes; mutation endpoints answer with the resulting
// full hidden-port state so the caller never needs a follow-up read.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mmr-tortoise/dockports/internal/model"
)

// SnapshotService produces one fresh aggregation pass per call.
// Implemented by the aggregate package.
type SnapshotService interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// HiddenStore is the mutation surface of the hidden-port overlay.
// Implemented by the hidden package.
type HiddenStore interface {
	List() []model.HiddenPortEntry
	HideBatch(ports []int, protos ...model.Protocol) ([]model.HiddenPortEntry, error)
	UnhideBatch(ports []int, protos ...model.Protocol) ([]model.HiddenPortEntry, error)
}

// NameConfig is the operator's service-name map. Implemented by the
// config package.
type NameConfig interface {
	All() map[string]int
	Set(name string, port int) (map[string]int, error)
}

// Handler carries the collaborators behind the HTTP surface.
type Handler struct {
	service SnapshotService
	store   HiddenStore
	names   NameConfig
}

// NewHandler wires the HTTP handler set. names may be nil, in which
// case the config endpoints answer 404.
func NewHandler(service SnapshotService, store HiddenStore, names NameConfig) *Handler {
	return &Handler{service: service, store: store, names: names}
}

// NewRouter builds the API route table with the standard middleware
// chain applied.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware, corsMiddleware)

	r.HandleFunc("/api/ports", h.GetPorts).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/refresh", h.GetPorts).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/api/hidden-ports", h.ListHidden).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/hidden-ports", h.HidePort).Methods(http.MethodPost)
	r.HandleFunc("/api/hidden-ports", h.UnhidePort).Methods(http.MethodDelete)
	// OPTIONS on the POST routes never reaches the handler; the CORS
	// middleware answers preflights first.
	r.HandleFunc("/api/hidden-ports/batch", h.HideBatch).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/hidden-ports/batch", h.UnhideBatch).Methods(http.MethodDelete)

	if h.names != nil {
		r.HandleFunc("/api/config", h.GetConfig).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc("/api/config", h.SetConfig).Methods(http.MethodPost)
	}

	return r
}

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	Error        string `json:"error,omitempty"`
	InvalidPorts []int  `json:"invalid_ports,omitempty"`
}

// GetPorts serves the classified port listing. Both /api/ports and
// /api/refresh land here: every request performs a fresh pass, so a
// dedicated refresh path has nothing extra to do.
//
// Source unavailability does not fail the request — the snapshot
// arrives with the degraded sources listed and the data that could be
// collected.
func (h *Handler) GetPorts(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if q := strings.TrimSpace(r.URL.Query().Get("search")); q != "" {
		filterSnapshot(snapshot, q)
	}
	writeData(w, http.StatusOK, snapshot)
}

// ListHidden serves the current normalized hidden-port entry set.
func (h *Handler) ListHidden(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.store.List())
}

// portRequest is the body of the single-port mutation endpoints.
type portRequest struct {
	Port     *int   `json:"port"`
	Protocol string `json:"protocol"`
}

// batchRequest is the body of the batch mutation endpoints.
type batchRequest struct {
	Ports    []int  `json:"ports"`
	Protocol string `json:"protocol"`
}

// HidePort handles POST /api/hidden-ports.
func (h *Handler) HidePort(w http.ResponseWriter, r *http.Request) {
	h.mutateSingle(w, r, h.store.HideBatch)
}

// UnhidePort handles DELETE /api/hidden-ports.
func (h *Handler) UnhidePort(w http.ResponseWriter, r *http.Request) {
	h.mutateSingle(w, r, h.store.UnhideBatch)
}

// HideBatch handles POST /api/hidden-ports/batch.
func (h *Handler) HideBatch(w http.ResponseWriter, r *http.Request) {
	h.mutateBatch(w, r, h.store.HideBatch)
}

// UnhideBatch handles DELETE /api/hidden-ports/batch.
func (h *Handler) UnhideBatch(w http.ResponseWriter, r *http.Request) {
	h.mutateBatch(w, r, h.store.UnhideBatch)
}

// mutateSingle decodes a single-port mutation request and applies it.
// A missing or non-integer port is an invalid-port rejection, the same
// taxonomy the store uses for out-of-range values.
func (h *Handler) mutateSingle(w http.ResponseWriter, r *http.Request, apply func([]int, ...model.Protocol) ([]model.HiddenPortEntry, error)) {
	var req portRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Port == nil {
		writeError(w, model.NewError(model.KindInvalidPort, "request must carry a port number"))
		return
	}
	h.applyMutation(w, []int{*req.Port}, req.Protocol, apply)
}

// mutateBatch decodes a batch mutation request and applies it
// atomically.
func (h *Handler) mutateBatch(w http.ResponseWriter, r *http.Request, apply func([]int, ...model.Protocol) ([]model.HiddenPortEntry, error)) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Ports) == 0 {
		writeError(w, model.NewError(model.KindInvalidPort, "request must carry a non-empty ports list"))
		return
	}
	h.applyMutation(w, req.Ports, req.Protocol, apply)
}

// applyMutation resolves the optional protocol selector and runs the
// store operation, answering with the full updated entry set.
func (h *Handler) applyMutation(w http.ResponseWriter, ports []int, protocol string, apply func([]int, ...model.Protocol) ([]model.HiddenPortEntry, error)) {
	var protos []model.Protocol
	if protocol != "" {
		proto, err := model.ParseProtocol(protocol)
		if err != nil {
			writeError(w, model.WrapError(model.KindInvalidPort, "invalid protocol", err))
			return
		}
		protos = append(protos, proto)
	}

	entries, err := apply(ports, protos...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

// GetConfig serves the operator's service-name map.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.names.All())
}

// configRequest is the body of POST /api/config.
type configRequest struct {
	Name string `json:"name"`
	Port *int   `json:"port"`
}

// SetConfig records one service-name mapping and answers with the full
// updated map.
func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Port == nil {
		writeError(w, model.NewError(model.KindInvalidPort, "request must carry a port number"))
		return
	}
	updated, err := h.names.Set(req.Name, *req.Port)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// decodeBody decodes a JSON request body. Malformed JSON — including a
// fractional port number — is classified as an invalid-port request
// error rather than a server fault.
func decodeBody(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return model.WrapError(model.KindInvalidPort, "malformed request body", err)
	}
	return nil
}

// filterSnapshot narrows the view entries to those matching the search
// query: port numbers (prefix match), container names, service names,
// process names, and protocol, plus ranges containing a searched port
// number. Summary counts describe the unfiltered pass and are left
// untouched.
func filterSnapshot(s *model.Snapshot, query string) {
	q := strings.ToLower(query)
	searchPort, searchIsPort := 0, false
	if n, err := strconv.Atoi(q); err == nil {
		searchPort, searchIsPort = n, true
	}

	filtered := s.Entries[:0]
	for _, entry := range s.Entries {
		switch entry.Kind {
		case model.EntryPort:
			if entry.Record != nil && recordMatches(entry.Record, q) {
				filtered = append(filtered, entry)
			}
		case model.EntryRange:
			if searchIsPort && entry.Range != nil &&
				searchPort >= entry.Range.Start && searchPort <= entry.Range.End {
				filtered = append(filtered, entry)
			}
		}
	}
	s.Entries = filtered
}

// recordMatches reports whether a used record matches the lowercased
// search query.
func recordMatches(rec *model.PortRecord, q string) bool {
	if strings.HasPrefix(strconv.Itoa(rec.Port), q) {
		return true
	}
	if q == rec.Protocol.String() {
		return true
	}
	for _, field := range []string{rec.ContainerName, rec.ServiceName, rec.Process} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError maps an error onto the envelope and an HTTP status from
// its kind.
func writeError(w http.ResponseWriter, err error) {
	env := envelope{Success: false, Error: err.Error()}
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		env.InvalidPorts = appErr.InvalidPorts
	}
	writeJSON(w, statusFor(err), env)
}

// statusFor maps the error taxonomy onto HTTP status codes. The
// unavailability kinds only reach the wire when a pass could not
// produce any data at all.
func statusFor(err error) int {
	var appErr *model.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case model.KindInvalidPort:
		return http.StatusBadRequest
	case model.KindRuntimeUnavailable, model.KindScanUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON serializes the envelope. An encoding failure at this point
// can only be logged: the status line is already committed.
func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
