package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"w0rd/internal/hormones"
	"w0rd/internal/seasons"
	"w0rd/internal/store"
)

// ── Response shapes ───────────────────────────────────────────────

type sproutResponse struct {
	ID           string  `json:"id"`
	SeedID       string  `json:"seed_id"`
	ParentID     string  `json:"parent_id"`
	Depth        int     `json:"depth"`
	Label        string  `json:"label"`
	Description  string  `json:"description"`
	Energy       float64 `json:"energy"`
	EthicalScore float64 `json:"ethical_score"`
	Pressure     float64 `json:"pressure"`
	Resonance    float64 `json:"resonance"`
	Warmth       float64 `json:"warmth"`
	Status       string  `json:"status"`
	CreatedAt    float64 `json:"created_at"`
}

type seedResponse struct {
	ID           string           `json:"id"`
	RawText      string           `json:"raw_text"`
	Essence      string           `json:"essence"`
	Themes       []string         `json:"themes"`
	ToneValence  float64          `json:"tone_valence"`
	ToneArousal  float64          `json:"tone_arousal"`
	Resonance    float64          `json:"resonance"`
	Energy       float64          `json:"energy"`
	EthicalScore float64          `json:"ethical_score"`
	Vitality     float64          `json:"vitality"`
	SeasonBorn   string           `json:"season_born"`
	Version      int              `json:"version"`
	Status       string           `json:"status"`
	CreatedAt    float64          `json:"created_at"`
	Sprouts      []sproutResponse `json:"sprouts"`
}

func seedToResponse(seed *store.Seed, sprouts []*store.Sprout) seedResponse {
	resp := seedResponse{
		ID: seed.ID, RawText: seed.RawText, Essence: seed.Essence,
		Themes: seed.Themes, ToneValence: seed.ToneValence,
		ToneArousal: seed.ToneArousal, Resonance: seed.Resonance,
		Energy: seed.Energy, EthicalScore: seed.EthicalScore,
		Vitality: seed.Vitality, SeasonBorn: seed.SeasonBorn,
		Version: seed.Version, Status: seed.Status,
		CreatedAt: seed.CreatedAt,
		Sprouts:   []sproutResponse{},
	}
	if resp.Themes == nil {
		resp.Themes = []string{}
	}
	for _, sp := range sprouts {
		resp.Sprouts = append(resp.Sprouts, sproutResponse{
			ID: sp.ID, SeedID: sp.SeedID, ParentID: sp.ParentID,
			Depth: sp.Depth, Label: sp.Label, Description: sp.Description,
			Energy: sp.Energy, EthicalScore: sp.EthicalScore,
			Pressure: sp.Pressure, Resonance: sp.Resonance,
			Warmth: sp.Warmth, Status: sp.Status, CreatedAt: sp.CreatedAt,
		})
	}
	return resp
}

type gardenStateResponse struct {
	TotalEnergy        float64 `json:"total_energy"`
	Vitality           float64 `json:"vitality"`
	Season             string  `json:"season"`
	TidalPhase         float64 `json:"tidal_phase"`
	CycleCount         int     `json:"cycle_count"`
	WisdomScore        float64 `json:"wisdom_score"`
	AntifragilityScore float64 `json:"antifragility_score"`
	DreamCount         int     `json:"dream_count"`
	SoilRichness       float64 `json:"soil_richness"`
	LastPulse          float64 `json:"last_pulse"`
}

func (s *Server) stateResponse(state *store.GardenState) gardenStateResponse {
	return gardenStateResponse{
		TotalEnergy: state.TotalEnergy, Vitality: state.Vitality,
		Season: state.Season, TidalPhase: s.org.Energy.TidalPhase(),
		CycleCount: state.CycleCount, WisdomScore: state.WisdomScore,
		AntifragilityScore: state.AntifragilityScore,
		DreamCount:         state.DreamCount,
		SoilRichness:       state.SoilRichness,
		LastPulse:          state.LastPulse,
	}
}

type pulseResponse struct {
	ID         string   `json:"id"`
	Cycle      int      `json:"cycle"`
	Summary    string   `json:"summary"`
	Thriving   []string `json:"thriving"`
	Struggling []string `json:"struggling"`
	Healing    []string `json:"healing"`
	Dreaming   []string `json:"dreaming"`
	Emergent   []string `json:"emergent"`
	CreatedAt  float64  `json:"created_at"`
}

func pulseToResponse(r *store.PulseReport) pulseResponse {
	return pulseResponse{
		ID: r.ID, Cycle: r.Cycle, Summary: r.Summary,
		Thriving: orEmpty(r.Thriving), Struggling: orEmpty(r.Struggling),
		Healing: orEmpty(r.Healing), Dreaming: orEmpty(r.Dreaming),
		Emergent: orEmpty(r.Emergent), CreatedAt: r.CreatedAt,
	}
}

type hormoneResponse struct {
	ID           string         `json:"id"`
	HormoneName  string         `json:"hormone_name"`
	EmitterOrgan string         `json:"emitter_organ"`
	Payload      map[string]any `json:"payload"`
	Processed    bool           `json:"processed"`
	CreatedAt    float64        `json:"created_at"`
}

func hormoneToResponse(h hormones.Hormone) hormoneResponse {
	return hormoneResponse{
		ID: h.ID, HormoneName: h.Name, EmitterOrgan: h.Emitter,
		Payload: h.Payload, Processed: true,
		CreatedAt: float64(h.Timestamp.UnixNano()) / 1e9,
	}
}

type agentResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	AgentType       string         `json:"agent_type"`
	Status          string         `json:"status"`
	ParentID        string         `json:"parent_id"`
	SeedID          string         `json:"seed_id"`
	TaskDescription string         `json:"task_description"`
	Capability      map[string]any `json:"capability"`
	Context         map[string]any `json:"context"`
	Result          string         `json:"result"`
	Error           string         `json:"error"`
	CreatedAt       float64        `json:"created_at"`
	StartedAt       *float64       `json:"started_at"`
	CompletedAt     *float64       `json:"completed_at"`
	RetiredAt       *float64       `json:"retired_at"`
}

func agentToResponse(a *store.AgentNode) agentResponse {
	return agentResponse{
		ID: a.ID, Name: a.Name, AgentType: a.AgentType, Status: a.Status,
		ParentID: a.ParentID, SeedID: a.SeedID,
		TaskDescription: a.TaskDescription,
		Capability:      decodeMap(a.Capability),
		Context:         decodeMap(a.Context),
		Result:          a.Result, Error: a.Error,
		CreatedAt: a.CreatedAt, StartedAt: a.StartedAt,
		CompletedAt: a.CompletedAt, RetiredAt: a.RetiredAt,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func decodeMap(raw string) map[string]any {
	out := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func notFoundOrFail(w http.ResponseWriter, err error, detail string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, detail)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// ── Root ──────────────────────────────────────────────────────────

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "w0rd — Living System Engine",
		"version": "3.0.0",
		"message": "The w0rd is g00d. Plant a seed and watch it grow.",
		"endpoints": map[string]string{
			"plant":     "POST /plant",
			"garden":    "GET /garden",
			"pulse":     "GET /pulse",
			"dreams":    "GET /dreams",
			"ecosystem": "GET /ecosystem",
		},
	})
}

// ── Planting ──────────────────────────────────────────────────────

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wish       string `json:"wish"`
		GardenerID string `json:"gardener_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Wish == "" {
		writeError(w, http.StatusBadRequest, "wish is required")
		return
	}

	seed, sprouts, err := s.org.Plant(r.Context(), req.Wish, req.GardenerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, sprouts))
}

func (s *Server) handlePlantMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wishes     []string `json:"wishes"`
		GardenerID string   `json:"gardener_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	results := []seedResponse{}
	for _, wish := range req.Wishes {
		seed, sprouts, err := s.org.Plant(r.Context(), wish, req.GardenerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		results = append(results, seedToResponse(seed, sprouts))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetSeed(w http.ResponseWriter, r *http.Request) {
	seed, err := s.store.GetSeed(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Seed not found")
		return
	}
	sprouts, err := s.store.SproutsForSeed(r.Context(), seed.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, sprouts))
}

func (s *Server) handleSeedLineage(w http.ResponseWriter, r *http.Request) {
	seed, err := s.store.GetSeed(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Seed not found")
		return
	}
	lineage := []any{}
	if seed.Lineage != "" {
		_ = json.Unmarshal([]byte(seed.Lineage), &lineage)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seed_id": seed.ID,
		"version": seed.Version,
		"lineage": lineage,
	})
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request) {
	req := struct {
		AttentionSeconds float64 `json:"attention_seconds"`
	}{AttentionSeconds: 30}
	if !decodeBody(w, r, &req) {
		return
	}

	seed, err := s.org.Water(r.Context(), r.PathValue("id"), req.AttentionSeconds)
	if err != nil {
		notFoundOrFail(w, err, "Seed not found")
		return
	}
	sprouts, err := s.store.SproutsForSeed(r.Context(), seed.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, sprouts))
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	seed, err := s.org.Harvest(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Seed not found")
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, nil))
}

func (s *Server) handleCompost(w http.ResponseWriter, r *http.Request) {
	seed, err := s.org.Compost(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Seed not found")
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, nil))
}

func (s *Server) handleResurrect(w http.ResponseWriter, r *http.Request) {
	seed, err := s.org.Resurrect(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Seed not found")
			return
		}
		writeError(w, http.StatusBadRequest, "Seed is not composted")
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, nil))
}

// ── Ecosystem ─────────────────────────────────────────────────────

func (s *Server) handleGarden(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.GardenState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	seeds, err := s.store.ActiveSeeds(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := []seedResponse{}
	for _, seed := range seeds {
		resp = append(resp, seedToResponse(seed, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      s.stateResponse(state),
		"seeds":      resp,
		"seed_count": len(resp),
	})
}

func (s *Server) handleEcosystem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := s.store.GardenState(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	seedCounts, err := s.store.CountSeeds(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sproutCount, err := s.store.CountSprouts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	linkCount, err := s.store.CountLinks(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	woundCount, _, err := s.store.CountWounds(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dreamCount, _, err := s.store.CountDreams(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recent := []hormoneResponse{}
	for _, h := range s.bus.Recent(10) {
		recent = append(recent, hormoneToResponse(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           s.stateResponse(state),
		"seed_count":      seedCounts["total"],
		"sprout_count":    sproutCount,
		"link_count":      linkCount,
		"wound_count":     woundCount,
		"dream_count":     dreamCount,
		"recent_hormones": recent,
	})
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.LatestPulseReport(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		report, err = s.org.Pulse.Pulse(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pulseToResponse(report))
}

func (s *Server) handlePulseHistory(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.RecentPulseReports(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []pulseResponse{}
	for _, rep := range reports {
		resp = append(resp, pulseToResponse(rep))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSoil(w http.ResponseWriter, r *http.Request) {
	composted, err := s.store.CompostedSeeds(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []seedResponse{}
	for _, seed := range composted {
		resp = append(resp, seedToResponse(seed, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"composted_seeds": resp,
		"count":           len(resp),
	})
}

func (s *Server) handleSoilRichness(w http.ResponseWriter, r *http.Request) {
	soil, err := s.org.MeasureSoil(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, soil)
}

// ── Underground ───────────────────────────────────────────────────

func (s *Server) handleMycelium(w http.ResponseWriter, r *http.Request) {
	links, err := s.store.Links(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []map[string]any{}
	for _, l := range links {
		resp = append(resp, map[string]any{
			"id":                 l.ID,
			"sprout_a_id":        l.SeedAID,
			"sprout_b_id":        l.SeedBID,
			"relationship_type":  l.RelationshipType,
			"synergy_score":      l.SynergyScore,
			"nutrient_flow":      l.NutrientFlow,
			"pollen_transferred": l.PollenTransferred,
			"created_at":         l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePollenMap(w http.ResponseWriter, r *http.Request) {
	events := []map[string]any{}
	for _, h := range s.bus.Recent(50) {
		if h.Name != "pollination" {
			continue
		}
		events = append(events, map[string]any{
			"source_seed_id":   h.Payload["source_seed_id"],
			"pollinated_count": h.Payload["pollinated_count"],
			"timestamp":        float64(h.Timestamp.UnixNano()) / 1e9,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recent_pollinations": events})
}

func (s *Server) handleDreams(w http.ResponseWriter, r *http.Request) {
	dreams, err := s.store.RecentDreams(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []map[string]any{}
	for _, d := range dreams {
		resp = append(resp, map[string]any{
			"id":              d.ID,
			"source_seed_ids": orEmpty(d.SourceSeedIDs),
			"insight":         d.Insight,
			"temperature":     d.Temperature,
			"perplexity":      d.Perplexity,
			"planted":         d.Planted,
			"created_at":      d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlantDream(w http.ResponseWriter, r *http.Request) {
	seed, err := s.org.Dreamer.PlantDream(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Dream not found or already planted")
		return
	}
	if seed == nil {
		writeError(w, http.StatusNotFound, "Dream not found or already planted")
		return
	}
	sprouts, err := s.org.Grower.Grow(r.Context(), seed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seedToResponse(seed, sprouts))
}

func (s *Server) handleWounds(w http.ResponseWriter, r *http.Request) {
	wounds, err := s.store.RecentWounds(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []map[string]any{}
	for _, wound := range wounds {
		resp = append(resp, map[string]any{
			"id":                   wound.ID,
			"wound_type":           wound.WoundType,
			"severity":             wound.Severity,
			"source_hormone":       wound.SourceHormone,
			"healing_action":       wound.HealingAction,
			"scar_lesson":          wound.ScarLesson,
			"antifragility_gained": wound.AntifragilityGained,
			"created_at":           wound.CreatedAt,
			"healed_at":            wound.HealedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Rhythm ────────────────────────────────────────────────────────

func (s *Server) handleTurnSeason(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	newSeason, err := s.org.Heartbeat.TurnSeason(ctx, r.URL.Query().Get("force"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	depleted, err := s.org.Energy.ApplyEntropy(ctx, newSeason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if depleted > 0 {
		if _, err := s.org.Healer.TriageAndHeal(ctx, "energy_famine", map[string]any{
			"depleted_count": depleted,
			"season":         newSeason,
		}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if _, err := s.org.Mycelium.ScanAndLink(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.org.Mycelium.ShareNutrients(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.org.Mycelium.CheckQuorum(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.FlushSlowRelease(ctx)

	writeJSON(w, http.StatusOK, map[string]any{
		"season":   newSeason,
		"behavior": seasons.BehaviorFor(newSeason),
	})
}

func (s *Server) handleSeasons(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.GardenState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"season":      state.Season,
		"tidal_phase": s.org.Energy.TidalPhase(),
		"cycle_count": state.CycleCount,
		"behavior":    seasons.BehaviorFor(state.Season),
	})
}

func gardenerResponse(g *store.Gardener) map[string]any {
	prefs := g.PreferenceVector
	if prefs == nil {
		prefs = []float64{}
	}
	return map[string]any{
		"id":                g.ID,
		"name":              g.Name,
		"preference_vector": prefs,
		"interaction_count": g.InteractionCount,
		"created_at":        g.CreatedAt,
	}
}

func (s *Server) handleGetGardener(w http.ResponseWriter, r *http.Request) {
	g, err := s.org.Gardeners.GetOrCreate(r.Context(), r.URL.Query().Get("gardener_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gardenerResponse(g))
}

func (s *Server) handleUpdateGardener(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             *string   `json:"name"`
		PreferenceVector []float64 `json:"preference_vector"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := s.org.Gardeners.GetOrCreate(r.Context(), r.URL.Query().Get("gardener_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.PreferenceVector != nil {
		g.PreferenceVector = req.PreferenceVector
	}
	if err := s.store.UpdateGardener(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, gardenerResponse(g))
}

func (s *Server) handleRecentHormones(w http.ResponseWriter, r *http.Request) {
	resp := []hormoneResponse{}
	for _, h := range s.bus.Recent(queryInt(r, "n", 20)) {
		resp = append(resp, hormoneToResponse(h))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Agents ────────────────────────────────────────────────────────

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	var (
		agents []*store.AgentNode
		err    error
	)
	if r.URL.Query().Get("include_retired") == "true" {
		agents, err = s.store.AllAgents(r.Context())
	} else {
		agents, err = s.store.ActiveAgents(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := []agentResponse{}
	for _, a := range agents {
		resp = append(resp, agentToResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		notFoundOrFail(w, err, "Agent not found")
		return
	}
	writeJSON(w, http.StatusOK, agentToResponse(agent))
}

func (s *Server) handleApproveAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approved bool `json:"approved"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	agent, err := s.org.Agents.Approve(r.Context(), r.PathValue("id"), req.Approved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "Agent not found or not awaiting approval")
		return
	}
	writeJSON(w, http.StatusOK, agentToResponse(agent))
}

func (s *Server) handleRetireAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.org.Agents.Retire(r.Context(), r.PathValue("id"), "manually retired by user")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "Agent not found or already retired")
		return
	}
	writeJSON(w, http.StatusOK, agentToResponse(agent))
}

// ── Consciousness ─────────────────────────────────────────────────

func (s *Server) emotionSnapshot() map[string]any {
	return map[string]any{
		"state":     s.org.Emotions.State(),
		"dominant":  s.org.Emotions.Dominant(),
		"intensity": s.org.Emotions.Intensity(),
	}
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.RecentEmotionalStates(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history := []map[string]any{}
	for i := len(states) - 1; i >= 0; i-- {
		st := states[i]
		history = append(history, map[string]any{
			"dominant":   st.DominantEmotion,
			"intensity":  st.Intensity,
			"joy":        st.Joy,
			"curiosity":  st.Curiosity,
			"anxiety":    st.Anxiety,
			"pride":      st.Pride,
			"grief":      st.Grief,
			"wonder":     st.Wonder,
			"trigger":    st.TriggerEvent,
			"created_at": st.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current":       s.emotionSnapshot(),
		"decision_bias": s.org.Emotions.DecisionBias(),
		"history":       history,
	})
}

func thoughtEntries(thoughts []*store.InnerThought) []map[string]any {
	out := []map[string]any{}
	for _, t := range thoughts {
		out = append(out, map[string]any{
			"id":           t.ID,
			"thought_type": t.ThoughtType,
			"content":      t.Content,
			"trigger":      t.Trigger,
			"depth":        t.Depth,
			"salience":     t.Salience,
			"created_at":   t.CreatedAt,
		})
	}
	return out
}

func (s *Server) handleThoughts(w http.ResponseWriter, r *http.Request) {
	thoughts, err := s.store.RecentInnerThoughts(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stream := thoughtEntries(thoughts)
	writeJSON(w, http.StatusOK, map[string]any{
		"thoughts": stream,
		"count":    len(stream),
	})
}

func memoryEntries(memories []*store.EpisodicMemory) []map[string]any {
	out := []map[string]any{}
	for _, m := range memories {
		out = append(out, map[string]any{
			"id":           m.ID,
			"narrative":    m.Narrative,
			"event_type":   m.EventType,
			"valence":      m.EmotionalValence,
			"intensity":    m.EmotionalIntensity,
			"recall_count": m.RecallCount,
			"created_at":   m.CreatedAt,
		})
	}
	return out
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.RecentEpisodicMemories(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	core, err := s.store.CoreMemories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories":      memoryEntries(memories),
		"core_memories": memoryEntries(core),
		"total":         len(memories),
		"core_count":    len(core),
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	unresolved, err := s.store.UnresolvedPredictions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	active := []map[string]any{}
	for _, p := range unresolved {
		active = append(active, map[string]any{
			"id":         p.ID,
			"type":       p.PredictionType,
			"subject_id": p.SubjectID,
			"predicted":  p.PredictedOutcome,
			"confidence": p.Confidence,
			"created_at": p.CreatedAt,
		})
	}

	past, err := s.store.ResolvedPredictions(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resolved := []map[string]any{}
	for i := len(past) - 1; i >= 0; i-- {
		p := past[i]
		resolved = append(resolved, map[string]any{
			"id":          p.ID,
			"type":        p.PredictionType,
			"predicted":   p.PredictedOutcome,
			"actual":      p.ActualOutcome,
			"surprise":    p.SurpriseScore,
			"confidence":  p.Confidence,
			"resolved_at": p.ResolvedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active":   active,
		"resolved": resolved,
		"stats":    s.org.Predictions.Stats(),
	})
}

func selfModelResponse(sm *store.SelfModelSnapshot) map[string]any {
	return map[string]any{
		"id":                 sm.ID,
		"harvest_rate":       sm.HarvestRate,
		"compost_rate":       sm.CompostRate,
		"dream_accuracy":     sm.DreamAccuracy,
		"theme_affinities":   decodeMap(sm.ThemeAffinities),
		"decision_accuracy":  decodeMap(sm.DecisionAccuracy),
		"personality_traits": decodeMap(sm.PersonalityTraits),
		"bias_warnings":      orEmpty(sm.BiasWarnings),
		"identity_narrative": sm.IdentityNarrative,
		"created_at":         sm.CreatedAt,
	}
}

func (s *Server) handleSelfModel(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.LatestSelfModelSnapshot(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "No self-model yet: the organism is still learning who it is.",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, selfModelResponse(latest))
}

func (s *Server) handleConsciousness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	thoughts, err := s.store.RecentInnerThoughts(ctx, 5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	memories, err := s.store.RecentEpisodicMemories(ctx, 5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	core, err := s.store.CoreMemories(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(core) > 5 {
		core = core[:5]
	}
	coreBrief := []map[string]any{}
	for _, m := range core {
		coreBrief = append(coreBrief, map[string]any{
			"narrative":  m.Narrative,
			"event_type": m.EventType,
		})
	}

	var selfModel any
	if latest, err := s.store.LatestSelfModelSnapshot(ctx); err == nil {
		selfModel = selfModelResponse(latest)
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"emotions":         s.emotionSnapshot(),
		"decision_bias":    s.org.Emotions.DecisionBias(),
		"recent_thoughts":  thoughtEntries(thoughts),
		"recent_memories":  memoryEntries(memories),
		"core_memories":    coreBrief,
		"prediction_stats": s.org.Predictions.Stats(),
		"self_model":       selfModel,
		"tick":             s.org.Tick(),
	})
}

// ── System ────────────────────────────────────────────────────────

func (s *Server) handleLifecycleStatus(w http.ResponseWriter, r *http.Request) {
	interval, err := s.cfg.TickInterval()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"autonomous":        true,
		"tick":              s.org.Tick(),
		"interval_seconds":  interval.Seconds(),
		"season_turn_every": s.cfg.Lifecycle.SeasonTurnEvery,
		"pulse_every":       s.cfg.Lifecycle.PulseEvery,
		"running":           true,
	})
}

func (s *Server) handleOllamaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cortex.Check(r.Context()))
}
