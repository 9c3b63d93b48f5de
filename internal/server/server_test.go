package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w0rd/internal/config"
	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/organism"
	"w0rd/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *hormones.Bus, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workspace = dir
	cfg.Store.DatabasePath = filepath.Join(dir, "garden.db")

	st, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := hormones.NewBus()
	cortex := llm.NewClient("http://127.0.0.1:1", "qwen3:8b", time.Second)
	org := organism.New(cfg, st, bus, cortex)

	srv := New(cfg, st, bus, org, cortex)
	ts := httptest.NewServer(cors(srv.Routes()))
	t.Cleanup(ts.Close)
	return srv, ts, bus, st
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func plantWish(t *testing.T, baseURL, wish string) map[string]any {
	t.Helper()
	var seed map[string]any
	res := doJSON(t, http.MethodPost, baseURL+"/plant",
		map[string]any{"wish": wish}, &seed)
	require.Equal(t, http.StatusOK, res.StatusCode)
	return seed
}

func TestRoot(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var got map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "w0rd — Living System Engine", got["name"])
	assert.Equal(t, "3.0.0", got["version"])
	assert.Equal(t, "The w0rd is g00d. Plant a seed and watch it grow.", got["message"])
}

func TestCORSPreflight(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/plant", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestPlantAndObserve(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	seed := plantWish(t, ts.URL, "I wish to grow a quiet reading habit")
	require.NotEmpty(t, seed["id"])
	assert.NotEmpty(t, seed["essence"])
	assert.Equal(t, "planted", seed["status"])
	assert.NotEmpty(t, seed["sprouts"])

	var fetched map[string]any
	res := doJSON(t, http.MethodGet, fmt.Sprintf("%s/seed/%s", ts.URL, seed["id"]), nil, &fetched)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, seed["id"], fetched["id"])

	var lineage map[string]any
	res = doJSON(t, http.MethodGet, fmt.Sprintf("%s/seed/%s/lineage", ts.URL, seed["id"]), nil, &lineage)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, seed["id"], lineage["seed_id"])
	assert.EqualValues(t, 1, lineage["version"])
}

func TestPlant_RequiresWish(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/plant", map[string]any{"wish": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetSeed_NotFound(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	res := doJSON(t, http.MethodGet, ts.URL+"/seed/no-such-seed", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestWaterSeed(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	seed := plantWish(t, ts.URL, "I wish to walk every morning")
	before := seed["energy"].(float64)

	var watered map[string]any
	res := doJSON(t, http.MethodPost, fmt.Sprintf("%s/seed/%s/water", ts.URL, seed["id"]),
		map[string]any{"attention_seconds": 10.0}, &watered)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Greater(t, watered["energy"].(float64), before)
}

func TestSeedLifecycleEndpoints(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	seed := plantWish(t, ts.URL, "I wish to write a small poem")
	id := seed["id"].(string)

	var harvested map[string]any
	res := doJSON(t, http.MethodPost, ts.URL+"/seed/"+id+"/harvest", nil, &harvested)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "harvested", harvested["status"])

	var composted map[string]any
	res = doJSON(t, http.MethodPost, ts.URL+"/seed/"+id+"/compost", nil, &composted)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "composted", composted["status"])

	var resurrected map[string]any
	res = doJSON(t, http.MethodPost, ts.URL+"/seed/"+id+"/resurrect", nil, &resurrected)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "planted", resurrected["status"])

	// A living seed cannot be resurrected again.
	res = doJSON(t, http.MethodPost, ts.URL+"/seed/"+id+"/resurrect", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGardenOverview(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	plantWish(t, ts.URL, "I wish for more patience")

	var got map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/garden", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, got["seed_count"])

	state := got["state"].(map[string]any)
	assert.Equal(t, "spring", state["season"])
	assert.Greater(t, state["total_energy"].(float64), 0.0)
}

func TestEcosystem(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	plantWish(t, ts.URL, "I wish to learn the stars")

	var got map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/ecosystem", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, got["seed_count"])
	assert.Greater(t, got["sprout_count"].(float64), 0.0)
	assert.NotEmpty(t, got["recent_hormones"])
}

func TestSoilEndpoints(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	seed := plantWish(t, ts.URL, "I wish for rain")
	doJSON(t, http.MethodPost, fmt.Sprintf("%s/seed/%s/compost", ts.URL, seed["id"]), nil, nil)

	var soil map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/soil", nil, &soil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, soil["count"])

	var richness map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/soil/richness", nil, &richness)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, richness["total_composted"])
	assert.Greater(t, richness["richness"].(float64), 0.0)
}

func TestTurnSeason(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var got map[string]any
	res := doJSON(t, http.MethodPost, ts.URL+"/seasons/turn?force=winter", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "winter", got["season"])
	require.Contains(t, got, "behavior")

	var seasons map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/seasons", nil, &seasons)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "winter", seasons["season"])
}

func TestGardenerProfile(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var created map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/gardener", nil, &created)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Anonymous Gardener", created["name"])

	id := created["id"].(string)
	var updated map[string]any
	res = doJSON(t, http.MethodPut, ts.URL+"/gardener?gardener_id="+id,
		map[string]any{"name": "Moss"}, &updated)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Moss", updated["name"])
	assert.Equal(t, id, updated["id"])
}

func TestRecentHormones(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	plantWish(t, ts.URL, "I wish for good bread")

	var got []map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/hormones/recent?n=5", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, got)
	names := make([]string, 0, len(got))
	for _, h := range got {
		names = append(names, h["hormone_name"].(string))
	}
	assert.Contains(t, names, "seed_planted")
}

func TestAgents(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var list []map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/agents", nil, &list)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, list)

	res = doJSON(t, http.MethodGet, ts.URL+"/agents/no-such-agent", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = doJSON(t, http.MethodPost, ts.URL+"/agents/no-such-agent/retire", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDreamsAndWoundsEmpty(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var dreams []map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/dreams", nil, &dreams)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, dreams)

	var wounds []map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/wounds", nil, &wounds)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, wounds)

	res = doJSON(t, http.MethodPost, ts.URL+"/dreams/no-such-dream/plant", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestConsciousnessEndpoints(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var overview map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/consciousness", nil, &overview)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, overview, "emotions")
	emotions := overview["emotions"].(map[string]any)
	assert.Equal(t, "curiosity", emotions["dominant"])
	assert.Nil(t, overview["self_model"])

	var selfModel map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/consciousness/self", nil, &selfModel)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, selfModel["message"], "still learning")

	var predictions map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/consciousness/predictions", nil, &predictions)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, predictions["active"])

	var thoughts map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/consciousness/thoughts", nil, &thoughts)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 0, thoughts["count"])
}

func TestPulseGeneratesWhenMissing(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var pulse map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/pulse", nil, &pulse)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, pulse["id"])
	assert.NotEmpty(t, pulse["summary"])

	var history []map[string]any
	res = doJSON(t, http.MethodGet, ts.URL+"/pulse/history", nil, &history)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, history, 1)
}

func TestLifecycleStatus(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var got map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/lifecycle/status", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, got["autonomous"])
	assert.EqualValues(t, 60, got["interval_seconds"])
	assert.EqualValues(t, 0, got["tick"])
}

func TestOllamaStatus_Offline(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	var got map[string]any
	res := doJSON(t, http.MethodGet, ts.URL+"/ollama/status", nil, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "offline", got["status"])
}

func TestGardenWebSocket(t *testing.T) {
	_, ts, bus, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/garden"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["event"])

	bus.Signal(context.Background(), "seed_planted", map[string]any{"seed_id": "s1"}, "soil")

	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "seed_planted", frame["event"])
	data := frame["data"].(map[string]any)
	assert.Equal(t, "s1", data["seed_id"])
}

func TestThinkingWebSocket(t *testing.T) {
	srv, ts, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/thinking"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	srv.hub.broadcastThinking(llm.ThinkingEvent{
		Organ: "cortex", Phase: "distill", Content: "roots remember rain",
	})

	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "thinking", frame["type"])
	assert.Equal(t, "cortex", frame["organ"])
}
