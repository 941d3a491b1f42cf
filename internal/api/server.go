// Package api exposes the app facade over a small JSON and SSE HTTP
// interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lanwake/internal/app"
	"lanwake/internal/logging"
	"lanwake/internal/scan"
	"lanwake/internal/store"
	"lanwake/internal/wol"
)

const shutdownTimeout = 5 * time.Second

// Server hosts the HTTP interface.
type Server struct {
	app *app.App
	log *zap.Logger

	// Scans outlive the request that started them.
	scanCtx context.Context

	mu      sync.Mutex
	clients map[chan struct{}]struct{}
}

// New constructs a Server for a. Scans started through the API are bound
// to ctx.
func New(ctx context.Context, a *app.App, log *zap.Logger) *Server {
	if log == nil {
		log = logging.Named("api")
	}
	return &Server{
		app:     a,
		log:     log,
		scanCtx: ctx,
		clients: make(map[chan struct{}]struct{}),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("POST /scan/start", s.handleStart)
	mux.HandleFunc("POST /scan/stop", s.handleStop)
	mux.HandleFunc("POST /scan/clear", s.handleClear)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("GET /saved", s.handleSavedList)
	mux.HandleFunc("POST /saved", s.handleSavedAdd)
	mux.HandleFunc("DELETE /saved/{id}", s.handleSavedDelete)
	mux.HandleFunc("POST /saved/{id}/wake", s.handleSavedWake)
	mux.HandleFunc("POST /wake", s.handleWake)
	mux.HandleFunc("GET /groups", s.handleGroups)
	mux.HandleFunc("POST /groups", s.handleGroupAdd)
	mux.HandleFunc("POST /groups/select", s.handleGroupSelect)
	mux.HandleFunc("POST /groups/{name}/wake", s.handleGroupWake)
	return mux
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("api listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Devices())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.app.StartScan(s.scanCtx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scan.ErrScanInProgress) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.app.StopScan()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.app.ClearResults()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Snapshot()
	if len(snap.Devices) == 0 {
		http.Error(w, "no scan data to export", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=scan.json")
	if err := scan.SaveExport(w, snap); err != nil {
		s.log.Warn("export failed", zap.Error(err))
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := s.app.Subscribe()
	defer unsubscribe()
	closed := s.addClient()
	defer s.removeClient(closed)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleSavedList(w http.ResponseWriter, r *http.Request) {
	var (
		devices []store.Device
		err     error
	)
	switch group := r.URL.Query().Get("group"); group {
	case "":
		devices, err = s.app.SavedDevices()
	case "selected":
		devices, err = s.app.SelectedDevices()
	default:
		devices, err = s.app.DevicesInGroup(group)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []store.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleSavedAdd(w http.ResponseWriter, r *http.Request) {
	var d store.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	status := http.StatusCreated
	if d.ID != 0 {
		status = http.StatusOK
	}
	if err := s.app.AddDevice(&d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, d)
}

func (s *Server) handleSavedDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteDevice(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSavedWake(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.app.WakeByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, wakeStatus(res.OK), res)
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	var d store.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if d.Name == "" {
		d.Name = d.MACAddress
	}
	ok, msg := s.app.Wake(r.Context(), d)
	writeJSON(w, wakeStatus(ok), app.WakeResult{Device: d, OK: ok, Message: msg})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.app.Groups()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Selected string        `json:"selected"`
		Groups   []store.Group `json:"groups"`
	}{s.app.SelectedGroup(), groups})
}

type groupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleGroupAdd(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := s.app.AddGroup(req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGroupSelect(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := s.app.SelectGroup(req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGroupWake(w http.ResponseWriter, r *http.Request) {
	results, err := s.app.WakeGroup(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []app.WakeResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) addClient() chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) removeClient(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
		close(ch)
	}
}

// closeClients ends every open event stream so Shutdown does not wait on
// them.
func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		delete(s.clients, ch)
		close(ch)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func wakeStatus(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, wol.ErrInvalidMAC), errors.Is(err, app.ErrInvalidIP), errors.Is(err, store.ErrInvalidGroup):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, strings.TrimSpace(err.Error()), http.StatusInternalServerError)
	}
}

func writeEvent(w http.ResponseWriter, snap scan.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}
