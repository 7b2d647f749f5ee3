// Package api provides the HTTP surface for the facility.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane); mutations
// are queued as commands and applied inside the next tick, never from the
// request goroutine.
// A websocket endpoint streams flushed tick events to spectators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/talgya/cultivar/internal/blueprints"
	"github.com/talgya/cultivar/internal/engine"
	"github.com/talgya/cultivar/internal/facility"
	"github.com/talgya/cultivar/internal/persistence"
	"github.com/talgya/cultivar/internal/sim"
	"github.com/talgya/cultivar/internal/workforce"
)

// Server serves the facility state over HTTP.
type Server struct {
	Engine      *engine.Engine
	Loop        *engine.Loop
	Sim         *sim.Simulation
	Market      *workforce.Market
	DB          *persistence.DB
	Hub         *Hub
	Addr        string
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	LibraryPath string // Data file reloaded by POST /reload. Empty = reload disabled.

	cmdMu    sync.Mutex
	commands []Command

	reloadMu       sync.Mutex
	pendingLibrary *blueprints.Library

	httpServer *http.Server
}

// TakePendingLibrary returns a staged library reload, or nil. The host
// applies it from the commit hook so the catalog swaps between ticks, never
// under one.
func (s *Server) TakePendingLibrary() *blueprints.Library {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	lib := s.pendingLibrary
	s.pendingLibrary = nil
	return lib
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/finance", s.handleFinance)
		r.Get("/ledger", s.handleLedger)
		r.Get("/events", s.handleEvents)
		r.Get("/zones", s.handleZones)
		r.Get("/zones/{id}", s.handleZoneDetail)
		r.Get("/inventory", s.handleInventory)
		r.Get("/personnel", s.handlePersonnel)
		r.Get("/labor", s.handleLabor)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Use(NewRateLimiter(60, time.Minute).Middleware)
			r.Post("/speed", s.handleSpeed)
			r.Post("/tick", s.handleManualTick)
			r.Post("/orders", s.handleOrder)
			r.Post("/plants", s.handlePlant)
			r.Post("/hire", s.handleHire)
			r.Post("/dismiss", s.handleDismiss)
			r.Post("/service", s.handleService)
			r.Post("/config", s.handleConfig)
			r.Post("/reload", s.handleReload)
			r.Post("/save", s.handleSave)
		})
	})

	if s.Hub != nil {
		r.Get("/ws", s.Hub.ServeWS)
	}
	return r
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// adminOnly requires bearer token auth on all requests passing through.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ADMIN_API_KEY set)", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.Engine.State()
	status := map[string]any{
		"name":         state.Name,
		"tick":         state.Clock.Tick,
		"sim_time":     engine.SimTime(state.Clock.Tick),
		"last_updated": state.Clock.LastUpdated,
		"cash_on_hand": state.Finances.CashOnHand,
		"plants":       state.PlantCount(),
		"employees":    len(state.Personnel),
		"lots":         len(state.Inventory.Lots),
		"outdoor":      state.Outdoor,
	}
	if s.Loop != nil {
		status["speed"] = s.Loop.Speed()
	}
	if s.Hub != nil {
		status["spectators"] = s.Hub.ClientCount()
	}
	writeJSON(w, status)
}

func (s *Server) handleFinance(w http.ResponseWriter, r *http.Request) {
	fin := s.Engine.State().Finances
	writeJSON(w, map[string]any{
		"cash_on_hand":   fin.CashOnHand,
		"summary":        fin.Summary,
		"ledger_entries": len(fin.Ledger),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	from := queryInt64(r, "from", 0)
	to := queryInt64(r, "to", s.Engine.State().Clock.Tick)

	if s.DB != nil {
		entries, err := s.DB.LedgerRange(from, to)
		if err != nil {
			slog.Error("ledger query failed", "error", err)
			http.Error(w, "ledger query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
		return
	}

	var entries []facility.LedgerEntry
	for _, e := range s.Engine.State().Finances.Ledger {
		if e.Tick >= from && e.Tick <= to {
			entries = append(entries, e)
		}
	}
	writeJSON(w, entries)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if t := r.URL.Query().Get("tick"); t != "" {
		tick, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			http.Error(w, "invalid tick", http.StatusBadRequest)
			return
		}
		batch, err := s.DB.EventsForTick(tick)
		if err != nil {
			http.Error(w, "events query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, batch)
		return
	}

	limit := int(queryInt64(r, "limit", 50))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	batch, err := s.DB.RecentEvents(limit)
	if err != nil {
		http.Error(w, "events query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, batch)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	type zoneSummary struct {
		ID          string               `json:"id"`
		Name        string               `json:"name"`
		Structure   string               `json:"structure"`
		Room        string               `json:"room"`
		Environment facility.Environment `json:"environment"`
		Devices     int                  `json:"devices"`
		Plants      int                  `json:"plants"`
	}

	var out []zoneSummary
	for _, st := range s.Engine.State().Structures {
		for _, room := range st.Rooms {
			for _, z := range room.Zones {
				out = append(out, zoneSummary{
					ID:          z.ID,
					Name:        z.Name,
					Structure:   st.Name,
					Room:        room.Name,
					Environment: z.Environment,
					Devices:     len(z.Devices),
					Plants:      len(z.Plants),
				})
			}
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleZoneDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, z := range s.Engine.State().AllZones() {
		if z.ID == id {
			writeJSON(w, z)
			return
		}
	}
	http.Error(w, "zone not found", http.StatusNotFound)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.State().Inventory)
}

func (s *Server) handlePersonnel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Engine.State().Personnel)
}

func (s *Server) handleLabor(w http.ResponseWriter, r *http.Request) {
	if s.Market == nil {
		writeJSON(w, []any{})
		return
	}
	writeJSON(w, s.Market.Candidates())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Loop == nil {
		http.Error(w, "no tick loop attached", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Loop.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Loop.Speed()})
}

// handleManualTick drives one tick immediately. Useful with the loop paused.
func (s *Server) handleManualTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.ProcessTick(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrTickInProgress) {
			http.Error(w, "tick already in progress", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ZoneID      string `json:"zone_id"`
		BlueprintID string `json:"blueprint_id"`
		Quantity    int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.BlueprintID == "" || req.Quantity <= 0 {
		http.Error(w, "blueprint_id and positive quantity required", http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Library.Device(req.BlueprintID); !ok {
		http.Error(w, "unknown blueprint", http.StatusBadRequest)
		return
	}
	if s.findZone(req.ZoneID) == nil {
		http.Error(w, "unknown zone", http.StatusBadRequest)
		return
	}
	cmd := Command{
		Kind:        CommandPurchase,
		ZoneID:      req.ZoneID,
		BlueprintID: req.BlueprintID,
		Quantity:    req.Quantity,
	}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ZoneID   string `json:"zone_id"`
		StrainID string `json:"strain_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Library.Strain(req.StrainID); !ok {
		http.Error(w, "unknown strain", http.StatusBadRequest)
		return
	}
	if s.findZone(req.ZoneID) == nil {
		http.Error(w, "unknown zone", http.StatusBadRequest)
		return
	}
	cmd := Command{Kind: CommandPlant, ZoneID: req.ZoneID, StrainID: req.StrainID}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	if s.Market == nil {
		http.Error(w, "labor market disabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	listed := false
	for _, c := range s.Market.Candidates() {
		if c.ID == req.CandidateID {
			listed = true
			break
		}
	}
	if !listed {
		http.Error(w, "candidate not on the market", http.StatusNotFound)
		return
	}
	cmd := Command{Kind: CommandHire, TargetID: req.CandidateID}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID string `json:"employee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	found := false
	for _, emp := range s.Engine.State().Personnel {
		if emp.ID == req.EmployeeID {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "employee not on the roster", http.StatusNotFound)
		return
	}
	cmd := Command{Kind: CommandDismiss, TargetID: req.EmployeeID}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	found := false
	for _, dev := range s.Engine.State().AllDevices() {
		if dev.ID == req.DeviceID {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	cmd := Command{Kind: CommandService, TargetID: req.DeviceID}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

// handleConfig adjusts live simulation knobs: tick length and the global
// item-price multiplier. Zero-valued fields are left unchanged. Validated
// here, applied inside the next tick like every other mutation.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TickLengthMinutes float64 `json:"tick_length_minutes"`
		PriceMultiplier   float64 `json:"price_multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if req.TickLengthMinutes != 0 && (req.TickLengthMinutes < 1 || req.TickLengthMinutes > 1440) {
		http.Error(w, "tick_length_minutes must be 1-1440", http.StatusBadRequest)
		return
	}
	if req.PriceMultiplier != 0 && (req.PriceMultiplier < 0.01 || req.PriceMultiplier > 100) {
		http.Error(w, "price_multiplier must be 0.01-100", http.StatusBadRequest)
		return
	}

	cmd := Command{
		Kind:              CommandConfig,
		TickLengthMinutes: req.TickLengthMinutes,
		PriceMultiplier:   req.PriceMultiplier,
	}
	s.EnqueueCommand(cmd)
	writeJSON(w, map[string]any{"queued": true, "command": cmd})
}

// handleReload re-parses the library data file and stages it; the swap into
// the running catalog happens at the next commit.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.LibraryPath == "" {
		http.Error(w, "library reload disabled", http.StatusServiceUnavailable)
		return
	}
	lib, err := blueprints.Load(s.LibraryPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.reloadMu.Lock()
	s.pendingLibrary = lib
	s.reloadMu.Unlock()

	slog.Info("library reload staged",
		"devices", len(lib.Devices), "strains", len(lib.Strains))
	writeJSON(w, map[string]any{
		"staged":  true,
		"devices": len(lib.Devices),
		"strains": len(lib.Strains),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.SaveState(s.Engine.State()); err != nil {
		slog.Error("manual save failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true, "tick": s.Engine.State().Clock.Tick})
}

func (s *Server) findZone(id string) *facility.Zone {
	return zoneByID(s.Engine.State(), id)
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
