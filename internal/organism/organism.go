// Package organism assembles every organ into one living system and
// drives the autonomous lifecycle tick.
package organism

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"w0rd/internal/agents"
	"w0rd/internal/autonomy"
	"w0rd/internal/config"
	"w0rd/internal/dreaming"
	"w0rd/internal/energy"
	"w0rd/internal/ethics"
	"w0rd/internal/fractal"
	"w0rd/internal/gardener"
	"w0rd/internal/healing"
	"w0rd/internal/hormones"
	"w0rd/internal/intent"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/mycelium"
	"w0rd/internal/psyche"
	"w0rd/internal/pulse"
	"w0rd/internal/seasons"
	"w0rd/internal/store"
)

const (
	maxAgentExecsPerTick   = 4
	maxSeedsPlannedPerTick = 2
)

// Organism is the whole living system: every organ wired to the same
// hormone bus and store, plus the tick counter that drives autonomy.
type Organism struct {
	cfg    *config.Config
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	log    *logging.Logger
	rng    *rand.Rand

	Listener  *intent.Listener
	Grower    *fractal.Grower
	Energy    *energy.Organ
	Immune    *ethics.Immune
	Healer    *healing.ScarTissue
	Mycelium  *mycelium.Network
	Heartbeat *seasons.Heartbeat
	Dreamer   *dreaming.Engine
	Pulse     *pulse.Consciousness
	Gardeners *gardener.Organ
	Agents    *agents.Registry
	Executor  *agents.Executor
	Autonomy  *autonomy.Engine

	Emotions    *psyche.EmotionalCore
	Voice       *psyche.InnerVoice
	Memory      *psyche.Memory
	Predictions *psyche.PredictionEngine
	SelfModel   *psyche.SelfModel

	tick int
}

// New wires all organs together. The organism is inert until Run or
// Tick is called.
func New(cfg *config.Config, st *store.Store, bus *hormones.Bus, cortex *llm.Client) *Organism {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	o := &Organism{
		cfg:    cfg,
		store:  st,
		bus:    bus,
		cortex: cortex,
		log:    logging.Get(logging.CategoryLifecycle),
		rng:    rng,

		Listener:  intent.NewListener(st, bus, cortex),
		Grower:    fractal.NewGrower(st, bus, cortex),
		Energy:    energy.NewOrgan(st, bus),
		Immune:    ethics.NewImmune(st, bus, ethics.DefaultPrinciples()),
		Healer:    healing.NewScarTissue(st, bus),
		Mycelium:  mycelium.NewNetwork(st, bus),
		Heartbeat: seasons.NewHeartbeat(st, bus),
		Dreamer:   dreaming.NewEngine(st, bus, cortex, rng),
		Pulse:     pulse.NewConsciousness(st, bus, cortex),
		Gardeners: gardener.NewOrgan(st),
		Agents:    agents.NewRegistry(st, bus),
		Executor:  agents.NewExecutor(cortex, cfg.Workspace),
		Autonomy:  autonomy.NewEngine(cortex),
	}

	o.Emotions = psyche.NewEmotionalCore(st, bus)
	o.Voice = psyche.NewInnerVoice(st, bus, cortex, rng)
	o.Memory = psyche.NewMemory(st, bus)
	o.Predictions = psyche.NewPredictionEngine(st, bus)
	o.SelfModel = psyche.NewSelfModel(st, bus, cortex)
	return o
}

// Tick returns the current lifecycle tick count.
func (o *Organism) Tick() int { return o.tick }

// Awaken restores persisted state before the first tick.
func (o *Organism) Awaken(ctx context.Context) error {
	if err := o.Emotions.LoadLatest(ctx); err != nil {
		return err
	}
	o.log.Info("the organism awakens, consciousness engaged")
	return nil
}

// Run drives the lifecycle until the context is cancelled.
func (o *Organism) Run(ctx context.Context) error {
	interval, err := o.cfg.TickInterval()
	if err != nil {
		return err
	}
	o.log.Info("autonomous lifecycle started (interval=%s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.log.Info("the organism rests, the garden gate closes")
			return nil
		case <-ticker.C:
			if err := o.RunTick(ctx); err != nil {
				o.log.Error("lifecycle tick %d failed: %v", o.tick, err)
			}
		}
	}
}

// RunTick runs one full lifecycle tick. Phase failures are collected
// rather than aborting the tick: a sick organ should not stop the
// heart.
func (o *Organism) RunTick(ctx context.Context) error {
	o.tick++
	o.Autonomy.ResetTickBudget()
	o.log.Info("── lifecycle tick %d ──", o.tick)
	timer := logging.StartTimer(logging.CategoryLifecycle, "lifecycle tick")

	var errs []error
	phase := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			o.log.Error("phase %s: %v", name, err)
			errs = append(errs, err)
		}
	}

	phase("water", o.autoWater)
	phase("lifecycle-decisions", o.decideLifecycle)
	phase("agents", o.orchestrateAgents)
	if o.tick%o.cfg.Lifecycle.SeasonTurnEvery == 0 {
		phase("season", o.turnSeason)
	}
	phase("mycelium", o.tendMycelium)
	if o.tick%o.cfg.Lifecycle.SeasonTurnEvery == 0 || o.tick%o.cfg.Lifecycle.DreamEvery == 0 {
		phase("dream", o.autoDream)
	}
	if o.tick%o.cfg.Lifecycle.PulseEvery == 0 {
		phase("pulse", o.autoPulse)
	}
	phase("psyche", o.processPsyche)

	o.bus.FlushSlowRelease(ctx)
	timer.StopWithThreshold(30 * time.Second)
	o.log.Info("── tick %d complete ──", o.tick)
	return errors.Join(errs...)
}

// autoWater feeds every living seed a little attention, runs energy
// distribution, and promotes established seedlings.
func (o *Organism) autoWater(ctx context.Context) error {
	living, err := o.store.LivingSeeds(ctx)
	if err != nil {
		return err
	}

	for _, seed := range living {
		if _, err := o.Energy.Photosynthesize(ctx, seed, o.cfg.Lifecycle.AutoWaterAttention); err != nil {
			return err
		}
		if err := o.Energy.PhloemDistribute(ctx, seed); err != nil {
			return err
		}
		if err := o.Energy.MycorrhizalRedistribute(ctx, seed); err != nil {
			return err
		}
	}

	for _, seed := range living {
		if seed.Status != store.SeedPlanted || !o.Autonomy.ShouldPromote(seed) {
			continue
		}
		seed.Status = store.SeedGrowing
		if err := o.store.UpdateSeed(ctx, seed); err != nil {
			return err
		}
		o.bus.Signal(ctx, "auto_promote", map[string]any{
			"seed_id": seed.ID,
			"essence": seed.DisplayEssence(),
		}, "lifecycle")
	}

	if len(living) > 0 {
		o.bus.Signal(ctx, "auto_water", map[string]any{
			"count": len(living),
			"tick":  o.tick,
		}, "lifecycle")
	}
	return nil
}

// decideLifecycle asks the cortex which seeds are ready to harvest or
// compost, then applies the verdicts. High anxiety suppresses
// composting: an anxious organism holds on.
func (o *Organism) decideLifecycle(ctx context.Context) error {
	living, err := o.store.LivingSeeds(ctx)
	if err != nil {
		return err
	}
	bias := o.Emotions.DecisionBias()

	for _, seed := range living {
		sprouts, err := o.store.LivingSproutsForSeed(ctx, seed.ID)
		if err != nil {
			return err
		}

		switch {
		case o.Autonomy.ShouldHarvest(ctx, seed, sprouts):
			if err := o.applyHarvest(ctx, seed); err != nil {
				return err
			}
		case o.Autonomy.ShouldCompost(ctx, seed, sprouts):
			if bias["conservatism"] > 0.5 && o.rng.Float64() < bias["conservatism"]*0.4 {
				o.log.Info("emotional override: too anxious to compost seed %s", seed.ID)
				continue
			}
			if err := o.applyCompost(ctx, seed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Organism) applyHarvest(ctx context.Context, seed *store.Seed) error {
	seed.Status = store.SeedHarvested
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return err
	}
	if _, err := o.Mycelium.Pollinate(ctx, seed); err != nil {
		return err
	}
	o.bus.Signal(ctx, "auto_harvest", map[string]any{
		"seed_id": seed.ID,
		"essence": seed.DisplayEssence(),
		"themes":  seed.Themes,
	}, "lifecycle")
	return nil
}

func (o *Organism) applyCompost(ctx context.Context, seed *store.Seed) error {
	seed.Status = store.SeedComposted
	seed.IsComposted = true
	if err := o.store.UpdateSeed(ctx, seed); err != nil {
		return err
	}
	o.bus.Signal(ctx, "auto_compost", map[string]any{
		"seed_id": seed.ID,
		"essence": seed.DisplayEssence(),
		"themes":  seed.Themes,
	}, "lifecycle")
	return nil
}

// orchestrateAgents works the idle agents, judges each mission from
// its team's fates, retires the finished, and plans new missions for
// growing seeds.
func (o *Organism) orchestrateAgents(ctx context.Context) error {
	idle, err := o.Agents.IdleAgents(ctx)
	if err != nil {
		return err
	}
	if len(idle) > maxAgentExecsPerTick {
		idle = idle[:maxAgentExecsPerTick]
	}
	for _, agent := range idle {
		if _, err := o.Agents.StartWork(ctx, agent.ID); err != nil {
			return err
		}
		params := map[string]any{"task": agent.TaskDescription}
		for k, v := range decodeCapability(agent.Capability) {
			params[k] = v
		}
		result := o.Executor.Execute(ctx, agent.AgentType, params)
		// A non-empty error is the failure signal, even when the
		// capability also produced partial output.
		if result.Error != "" {
			if _, err := o.Agents.Fail(ctx, agent.ID, result.Error); err != nil {
				return err
			}
		} else {
			if _, err := o.Agents.Complete(ctx, agent.ID, result.Result, nil); err != nil {
				return err
			}
		}
	}

	if err := o.assessMissions(ctx); err != nil {
		return err
	}
	if err := o.retireCompleted(ctx); err != nil {
		return err
	}
	return o.planMissions(ctx)
}

// assessMissions closes out missions whose agents have spoken: a team
// that succeeded ripens its seed for harvest, a team that failed
// entirely returns it to the soil.
func (o *Organism) assessMissions(ctx context.Context) error {
	growing, err := o.store.SeedsByStatus(ctx, store.SeedGrowing)
	if err != nil {
		return err
	}
	for _, seed := range growing {
		team, err := o.store.AgentsForSeed(ctx, seed.ID)
		if err != nil {
			return err
		}
		switch autonomy.EvaluateMission(team) {
		case autonomy.VerdictHarvest:
			o.log.Info("mission complete for seed %s, harvesting", seed.ID)
			if err := o.applyHarvest(ctx, seed); err != nil {
				return err
			}
		case autonomy.VerdictCompost:
			o.log.Info("mission failed for seed %s, composting", seed.ID)
			if err := o.applyCompost(ctx, seed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Organism) retireCompleted(ctx context.Context) error {
	completed, err := o.Agents.CompletedAgents(ctx)
	if err != nil {
		return err
	}
	for _, agent := range completed {
		if _, err := o.Agents.Retire(ctx, agent.ID, "task complete"); err != nil {
			return err
		}
	}
	if len(completed) > 0 {
		o.log.Info("retired %d completed agents", len(completed))
	}
	return nil
}

func (o *Organism) planMissions(ctx context.Context) error {
	growing, err := o.store.SeedsByStatus(ctx, store.SeedGrowing)
	if err != nil {
		return err
	}

	planned := 0
	for _, seed := range growing {
		if planned >= maxSeedsPlannedPerTick {
			break
		}
		existing, err := o.store.AgentsForSeed(ctx, seed.ID)
		if err != nil {
			return err
		}
		tasks := o.Autonomy.PlanMission(ctx, seed, existing)
		if len(tasks) == 0 {
			continue
		}
		planned++
		for _, task := range tasks {
			if _, err := o.Agents.Spawn(ctx, task.AgentType, task.Task, seed.ID, "", nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Organism) turnSeason(ctx context.Context) error {
	season, err := o.Heartbeat.TurnSeason(ctx, "")
	if err != nil {
		return err
	}
	depleted, err := o.Energy.ApplyEntropy(ctx, season)
	if err != nil {
		return err
	}
	if depleted > 0 {
		if _, err := o.Healer.TriageAndHeal(ctx, "energy_famine", map[string]any{
			"depleted_count": depleted,
			"season":         season,
		}); err != nil {
			return err
		}
	}
	o.log.Info("auto season turn -> %s", season)
	return nil
}

func (o *Organism) tendMycelium(ctx context.Context) error {
	if _, err := o.Mycelium.ScanAndLink(ctx); err != nil {
		return err
	}
	if _, err := o.Mycelium.ShareNutrients(ctx); err != nil {
		return err
	}
	_, err := o.Mycelium.CheckQuorum(ctx)
	return err
}

// autoDream lets the garden dream, and plants the dream when the
// insight is coherent enough to live.
func (o *Organism) autoDream(ctx context.Context) error {
	dream, err := o.Dreamer.Dream(ctx, 0)
	if err != nil {
		return err
	}
	if dream == nil || !o.Autonomy.ShouldPlantDream(ctx, dream) {
		return nil
	}

	seed, err := o.Dreamer.PlantDream(ctx, dream.ID)
	if err != nil {
		return err
	}
	if seed == nil {
		return nil
	}
	if _, err := o.Grower.Grow(ctx, seed); err != nil {
		return err
	}
	o.bus.Signal(ctx, "auto_dream_planted", map[string]any{
		"dream_id": dream.ID,
		"seed_id":  seed.ID,
		"insight":  dream.Insight,
	}, "lifecycle")
	o.log.Info("auto-planted dream %s as seed %s", dream.ID, seed.ID)
	return nil
}

func (o *Organism) autoPulse(ctx context.Context) error {
	if _, err := o.Pulse.Pulse(ctx); err != nil {
		return err
	}
	o.bus.Signal(ctx, "auto_pulse", map[string]any{"tick": o.tick}, "lifecycle")
	return nil
}

// processPsyche runs the consciousness layer: feelings, memories, a
// thought, and the prediction loop. Introspection and consolidation
// run on slower rhythms.
func (o *Organism) processPsyche(ctx context.Context) error {
	if _, err := o.Emotions.ProcessTick(ctx); err != nil {
		return err
	}
	mood := o.Emotions.Snapshot()

	if _, err := o.Memory.ProcessTick(ctx, &mood); err != nil {
		return err
	}
	if _, err := o.Voice.Think(ctx, mood); err != nil {
		return err
	}
	if _, err := o.Predictions.ResolvePredictions(ctx); err != nil {
		return err
	}
	if _, err := o.Predictions.MakePredictions(ctx); err != nil {
		return err
	}

	if o.tick%o.cfg.Lifecycle.SelfModelEvery == 0 {
		if _, err := o.SelfModel.Introspect(ctx); err != nil {
			return err
		}
	}
	if o.tick%o.cfg.Lifecycle.ConsolidateEvery == 0 {
		if _, err := o.Memory.Consolidate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func decodeCapability(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
