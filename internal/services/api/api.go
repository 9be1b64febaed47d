package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auralink/plantlink/internal/model/entities"
	"github.com/auralink/plantlink/internal/model/messages"
	"github.com/auralink/plantlink/internal/services/devicecache"
	"github.com/auralink/plantlink/internal/services/inbox"
	"github.com/auralink/plantlink/internal/services/store"
)

const queryTimeout = 5 * time.Second

// Store is the slice of storage the management API needs.
type Store interface {
	RecentReadings(ctx context.Context, deviceID string, limit int) ([]messages.SensorReading, error)
	RecentAdvisories(ctx context.Context, deviceID string, limit int) ([]messages.AdvisoryPayload, error)
	LatestAdvisory(ctx context.Context, deviceID string) (messages.AdvisoryPayload, bool, error)
	Profile(ctx context.Context, deviceID string) (entities.DeviceProfile, error)
	SetProfileField(ctx context.Context, deviceID, field, value string) error
}

// InboxReader serves the cached recent inbox envelopes.
type InboxReader interface {
	Recent(max int) []inbox.Mail
}

// Server wires the management and dashboard endpoints.
type Server struct {
	store Store
	cache *devicecache.Cache
	inbox InboxReader // nil when IMAP is not configured
}

func NewServer(st Store, cache *devicecache.Cache, ibx InboxReader) *Server {
	return &Server{store: st, cache: cache, inbox: ibx}
}

// Mux returns the HTTP mux with all routes registered.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/device/{id}/plant", s.setPlantName)
	mux.HandleFunc("GET /api/device/{id}/plant", s.getPlantName)
	mux.HandleFunc("POST /api/device/{id}/notify-email", s.setNotifyEmail)
	mux.HandleFunc("GET /api/device/{id}/notify-email", s.getNotifyEmail)
	mux.HandleFunc("GET /api/device/{id}/readings", s.recentReadings)
	mux.HandleFunc("GET /api/device/{id}/display/latest", s.latestDisplay)
	mux.HandleFunc("GET /api/device/{id}/displays", s.recentDisplays)
	mux.HandleFunc("GET /api/inbox/recent", s.recentInbox)

	return mux
}

// ---------------- profile ----------------

func (s *Server) setPlantName(w http.ResponseWriter, r *http.Request) {
	s.setProfileField(w, r, store.FieldPlantName, "plantName",
		func(deviceID, v string) { s.cache.SetPlantName(deviceID, v) })
}

func (s *Server) setNotifyEmail(w http.ResponseWriter, r *http.Request) {
	s.setProfileField(w, r, store.FieldNotifyEmail, "email",
		func(deviceID, v string) { s.cache.SetNotifyEmail(deviceID, v) })
}

// setProfileField upserts one field in storage, then writes through to the
// cache so the pipeline sees the change without a restart.
func (s *Server) setProfileField(w http.ResponseWriter, r *http.Request, field, jsonKey string, toCache func(string, string)) {
	deviceID := r.PathValue("id")

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	value := strings.TrimSpace(body[jsonKey])
	if value == "" {
		writeErr(w, http.StatusBadRequest, jsonKey+" required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if err := s.store.SetProfileField(ctx, deviceID, field, value); err != nil {
		log.Printf("api: set %s for %s failed: %v", field, deviceID, err)
		writeErr(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	toCache(deviceID, value)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deviceId": deviceID, jsonKey: value})
}

func (s *Server) getPlantName(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true, "deviceId": deviceID,
		"plantName": s.cache.PlantName(ctx, deviceID),
	})
}

func (s *Server) getNotifyEmail(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true, "deviceId": deviceID,
		"notifyEmail": s.cache.NotifyEmail(ctx, deviceID),
	})
}

// ---------------- history ----------------

func (s *Server) recentReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	limit := parseLimit(r, 50, 500)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	readings, err := s.store.RecentReadings(ctx, deviceID, limit)
	if err != nil {
		log.Printf("api: readings for %s failed: %v", deviceID, err)
		writeErr(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	type item struct {
		Ts      time.Time `json:"ts"`
		TempC   float64   `json:"t_c"`
		HumPct  float64   `json:"h_pct"`
		SoilPct float64   `json:"soil_pct"`
	}
	items := make([]item, 0, len(readings))
	for _, rd := range readings {
		items = append(items, item{Ts: rd.Timestamp, TempC: rd.TempC, HumPct: rd.HumPct, SoilPct: rd.SoilPct})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true, "deviceId": deviceID, "count": len(items), "items": items,
	})
}

func (s *Server) latestDisplay(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	p, ok, err := s.store.LatestAdvisory(ctx, deviceID)
	if err != nil {
		log.Printf("api: latest display for %s failed: %v", deviceID, err)
		writeErr(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "no display yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true, "deviceId": deviceID, "ts": p.Timestamp, "payload": p,
	})
}

func (s *Server) recentDisplays(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	limit := parseLimit(r, 20, 100)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	list, err := s.store.RecentAdvisories(ctx, deviceID, limit)
	if err != nil {
		log.Printf("api: displays for %s failed: %v", deviceID, err)
		writeErr(w, http.StatusBadGateway, "storage unavailable")
		return
	}

	type item struct {
		Ts      time.Time                `json:"ts"`
		Payload messages.AdvisoryPayload `json:"payload"`
	}
	items := make([]item, 0, len(list))
	for _, p := range list {
		items = append(items, item{Ts: p.Timestamp, Payload: p})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true, "deviceId": deviceID, "count": len(items), "items": items,
	})
}

// ---------------- inbox ----------------

func (s *Server) recentInbox(w http.ResponseWriter, r *http.Request) {
	max := parseQueryInt(r, "max", 5, 1, 20)
	var items []inbox.Mail
	if s.inbox != nil {
		items = s.inbox.Recent(max)
	}
	if items == nil {
		items = []inbox.Mail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(items), "items": items})
}

// ---------------- helpers ----------------

func parseLimit(r *http.Request, def, max int) int {
	return parseQueryInt(r, "limit", def, 1, max)
}

func parseQueryInt(r *http.Request, key string, def, min, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
