package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/llm"
	"github.com/kaura24/regaudit/internal/lock"
	"github.com/kaura24/regaudit/internal/raster"
	"github.com/kaura24/regaudit/internal/store"
	"github.com/kaura24/regaudit/internal/types"
)

// scriptedClient replays canned collaborator responses in call order and
// records which model tier each call used. An exhausted script returns a
// non-retryable error so a test with too few responses fails loudly.
type scriptedClient struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	tiers     []llm.ModelTier
}

type scriptedResponse struct {
	text string
	err  error
}

func respond(text string) scriptedResponse  { return scriptedResponse{text: text} }
func respondErr(err error) scriptedResponse { return scriptedResponse{err: err} }

func (c *scriptedClient) Understand(_ context.Context, _ []llm.Image, _ string, tier llm.ModelTier) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.tiers = append(c.tiers, tier)
	if len(c.responses) == 0 {
		return "", &llm.CollaboratorError{Message: "script exhausted"}
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return r.text, r.err
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// stubRasterizer yields one synthetic page per source, or a fixed error.
type stubRasterizer struct {
	err error
}

func (r stubRasterizer) Rasterize(_ context.Context, _ types.SourceRef) ([]raster.PageImage, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []raster.PageImage{{Data: []byte("page-bytes"), MIME: "image/png", Index: 0}}, nil
}

type testEnv struct {
	orc    *Orchestrator
	repo   *store.Repository
	bus    *bus.Bus
	locks  *lock.Controller
	client *scriptedClient
}

func newTestEnv(t *testing.T, responses ...scriptedResponse) *testEnv {
	t.Helper()
	s, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		repo:   store.NewRepository(s),
		bus:    bus.New(),
		locks:  lock.NewController(s),
		client: &scriptedClient{responses: responses},
	}
	env.orc = New(env.repo, env.client, stubRasterizer{}, env.locks, env.bus, nil)
	return env
}

func (e *testEnv) newRun(t *testing.T, mode types.ExecutionMode) *types.Run {
	t.Helper()
	run, err := e.orc.CreateRun(context.Background(),
		[]types.SourceRef{{URI: "pages/reg-001", Kind: "store_prefix"}}, mode)
	require.NoError(t, err)
	return run
}

// drain collects everything currently buffered on a subscription.
func drain(ch <-chan bus.Event) []bus.Event {
	var out []bus.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []bus.Event) []bus.EventType {
	out := make([]bus.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func hasEventType(events []bus.Event, typ bus.EventType) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

// recentDate keeps fixture documents inside the staleness window regardless
// of when the tests run.
func recentDate() string {
	return time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
}

func assessmentJSON(isRegister bool, docType string) string {
	return fmt.Sprintf(`{"is_register": %t, "document_type": %q, "confidence": 0.95, "rationale": "layout and column headings"}`,
		isRegister, docType)
}

func extractionJSON() string {
	return `{
		"entries": [
			{"name": "Kim Minjun", "identifier": "900101-1234567", "shares": "6,000", "ratio": "60%", "page_index": 0},
			{"name": "Daehan Holdings", "identifier": "110111-2345678", "shares": "4,000", "ratio": "40%", "page_index": 0}
		],
		"properties": {"company_name": "Hanbit Industries"},
		"page_count": 1
	}`
}

// cleanDocJSON is a two-holder register that passes every validation rule.
func cleanDocJSON(company string) string {
	return fmt.Sprintf(`{
		"properties": {
			"company_name": %q,
			"registration_number": "110111-0012345",
			"total_shares": 10000,
			"total_capital": null,
			"ownership_basis": "SHARES",
			"document_date": %q
		},
		"shareholders": [
			{"name": "Kim Minjun", "entity_type": "INDIVIDUAL", "identifier": "900101-1234567", "identifier_type": "RESIDENT_REG", "shares": 6000, "ratio": 60, "amount": null, "confidence": 0.95},
			{"name": "Daehan Holdings", "entity_type": "CORPORATE", "identifier": "110111-2345678", "identifier_type": "CORPORATE_REG", "shares": 4000, "ratio": 40, "amount": null, "confidence": 0.9}
		]
	}`, company, recentDate())
}

// ratioBrokenDocJSON declares ratios summing to 120%, which trips the
// ratio-sum blocker and nothing else.
func ratioBrokenDocJSON() string {
	return fmt.Sprintf(`{
		"properties": {
			"company_name": "Hanbit Industries",
			"total_shares": null,
			"total_capital": null,
			"ownership_basis": "DECLARED",
			"document_date": %q
		},
		"shareholders": [
			{"name": "Kim Minjun", "entity_type": "INDIVIDUAL", "identifier": "900101-1234567", "identifier_type": "RESIDENT_REG", "shares": null, "ratio": 80, "amount": null, "confidence": 0.95},
			{"name": "Daehan Holdings", "entity_type": "CORPORATE", "identifier": "110111-2345678", "identifier_type": "CORPORATE_REG", "shares": null, "ratio": 40, "amount": null, "confidence": 0.9}
		]
	}`, recentDate())
}

func analysisJSON() string {
	return `{"narrative": "Kim Minjun holds a 60% controlling stake; Daehan Holdings holds the remaining 40%.", "caveats": [], "confidence": 0.9}`
}

func fastResultJSON(doc string) string {
	return fmt.Sprintf(`{"is_register": true, "document_type": "shareholder register", "document": %s}`, doc)
}
