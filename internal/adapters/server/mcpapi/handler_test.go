package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/capacity"
	"github.com/tillerhq/tiller/internal/domain"
	"github.com/tillerhq/tiller/internal/graph"
)

// stubEngine provides deterministic engine responses for MCP tool tests.
type stubEngine struct {
	graphResult app.DependencyGraphResult
	impact      graph.Impact
	item        domain.WorkItem
	snapshot    capacity.TeamSnapshot
	plan        domain.RebalancePlan
	record      domain.RebalanceRecord
	history     []domain.RebalanceRecord
	err         error

	lastScopeID     string
	lastItemID      string
	lastDependsOn   string
	lastTeamID      string
	lastStart       time.Time
	lastEnd         time.Time
	lastSprintID    string
	lastPlan        domain.RebalancePlan
	lastTriggeredBy string
	lastLimit       int
}

func (s *stubEngine) GetDependencyGraph(_ context.Context, scopeID string) (app.DependencyGraphResult, error) {
	s.lastScopeID = scopeID
	if s.err != nil {
		return app.DependencyGraphResult{}, s.err
	}
	return s.graphResult, nil
}

func (s *stubEngine) GetImpact(_ context.Context, itemID string) (graph.Impact, error) {
	s.lastItemID = itemID
	if s.err != nil {
		return graph.Impact{}, s.err
	}
	return s.impact, nil
}

func (s *stubEngine) AddDependency(_ context.Context, itemID, dependsOnID string) (domain.WorkItem, error) {
	s.lastItemID = itemID
	s.lastDependsOn = dependsOnID
	if s.err != nil {
		return domain.WorkItem{}, s.err
	}
	return s.item, nil
}

func (s *stubEngine) RemoveDependency(_ context.Context, itemID, dependsOnID string) (domain.WorkItem, error) {
	s.lastItemID = itemID
	s.lastDependsOn = dependsOnID
	if s.err != nil {
		return domain.WorkItem{}, s.err
	}
	return s.item, nil
}

func (s *stubEngine) GetCapacitySnapshot(_ context.Context, teamID string, start, end time.Time) (capacity.TeamSnapshot, error) {
	s.lastTeamID = teamID
	s.lastStart = start
	s.lastEnd = end
	if s.err != nil {
		return capacity.TeamSnapshot{}, s.err
	}
	return s.snapshot, nil
}

func (s *stubEngine) GenerateRebalancePlan(_ context.Context, teamID, sprintID string) (domain.RebalancePlan, error) {
	s.lastTeamID = teamID
	s.lastSprintID = sprintID
	if s.err != nil {
		return domain.RebalancePlan{}, s.err
	}
	return s.plan, nil
}

func (s *stubEngine) ApplyRebalancePlan(_ context.Context, teamID string, plan domain.RebalancePlan, triggeredBy, sprintID string) (domain.RebalanceRecord, error) {
	s.lastTeamID = teamID
	s.lastPlan = plan
	s.lastTriggeredBy = triggeredBy
	s.lastSprintID = sprintID
	if s.err != nil {
		return domain.RebalanceRecord{}, s.err
	}
	return s.record, nil
}

func (s *stubEngine) GetRebalanceHistory(_ context.Context, teamID string, limit int) ([]domain.RebalanceRecord, error) {
	s.lastTeamID = teamID
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.RebalanceRecord(nil), s.history...), nil
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "tiller-test",
				"version": "1.0.0",
			},
		},
	}
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

// listToolNames fetches tools/list and returns the registered tool names.
func listToolNames(t *testing.T, client *http.Client, url string) []string {
	t.Helper()
	_, toolsResp := postJSONRPC(t, client, url, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})
	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	return toolNames
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubEngine{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersEngineTools verifies MCP tool discovery lists the full engine surface.
func TestHandlerRegistersEngineTools(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubEngine{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	toolNames := listToolNames(t, server.Client(), server.URL)
	for _, required := range []string{
		"tiller.get_dependency_graph",
		"tiller.get_impact",
		"tiller.add_dependency",
		"tiller.remove_dependency",
		"tiller.get_capacity_snapshot",
		"tiller.generate_rebalance_plan",
		"tiller.apply_rebalance_plan",
		"tiller.get_rebalance_history",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %q: %#v", required, toolNames)
		}
	}
}

// TestHandlerDependencyGraphToolCall verifies tool-call wiring returns structured graph data.
func TestHandlerDependencyGraphToolCall(t *testing.T) {
	engine := &stubEngine{
		graphResult: app.DependencyGraphResult{
			ScopeID: "proj-1",
			Nodes: []app.GraphNode{
				{ID: "wi-1", Title: "Design schema", Kind: "task", Status: "todo", Dependencies: []string{}},
			},
			Analysis: graph.Analysis{
				CriticalPath:     []string{"wi-1"},
				Levels:           map[string]int{"wi-1": 0},
				TopologicalOrder: []string{"wi-1"},
				ParallelTracks:   [][]string{{"wi-1"}},
				BlockedItems:     []graph.BlockedItem{},
			},
		},
	}
	handler, err := NewHandler(Config{}, engine)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tiller.get_dependency_graph", map[string]any{
		"scope_id": "proj-1",
	}))
	structured := toolResultStructured(t, callResp.Result)
	if got, _ := structured["scope_id"].(string); got != "proj-1" {
		t.Fatalf("scope_id = %q, want proj-1", got)
	}
	pathRaw, ok := structured["critical_path"].([]any)
	if !ok || len(pathRaw) != 1 {
		t.Fatalf("critical_path = %#v, want one entry", structured["critical_path"])
	}
	if engine.lastScopeID != "proj-1" {
		t.Fatalf("scope_id passed = %q, want proj-1", engine.lastScopeID)
	}
}

// TestHandlerAddDependencyToolCall verifies dependency tool wiring and cycle error mapping.
func TestHandlerAddDependencyToolCall(t *testing.T) {
	item := domain.WorkItem{ID: "wi-2", Dependencies: []string{"wi-1"}}
	engine := &stubEngine{item: item}
	handler, err := NewHandler(Config{}, engine)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "tiller.add_dependency", map[string]any{
		"item_id":    "wi-2",
		"depends_on": "wi-1",
	}))
	structured := toolResultStructured(t, callResp.Result)
	if got, _ := structured["item_id"].(string); got != "wi-2" {
		t.Fatalf("item_id = %q, want wi-2", got)
	}
	depsRaw, ok := structured["dependencies"].([]any)
	if !ok || len(depsRaw) != 1 || depsRaw[0] != "wi-1" {
		t.Fatalf("dependencies = %#v, want [wi-1]", structured["dependencies"])
	}
	if engine.lastItemID != "wi-2" || engine.lastDependsOn != "wi-1" {
		t.Fatalf("dependency args = (%q, %q), want (wi-2, wi-1)", engine.lastItemID, engine.lastDependsOn)
	}

	engine.err = app.ErrCycleDetected
	_, cycleResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tiller.add_dependency", map[string]any{
		"item_id":    "wi-1",
		"depends_on": "wi-2",
	}))
	if isError, _ := cycleResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", cycleResp.Result["isError"])
	}
	if got := toolResultText(t, cycleResp.Result); !strings.HasPrefix(got, "cycle_detected:") {
		t.Fatalf("error text = %q, want prefix cycle_detected:", got)
	}
}

// TestHandlerCapacitySnapshotToolCall verifies window argument parsing and structured output.
func TestHandlerCapacitySnapshotToolCall(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	engine := &stubEngine{
		snapshot: capacity.TeamSnapshot{
			TeamID: "team-1",
			Window: capacity.Window{Start: start, End: end},
			Members: []capacity.MemberSnapshot{
				{ID: "m1", Name: "Asha", BaseCapacity: 40, EffectiveCapacity: 40, CurrentWorkload: 30, Utilization: 0.75},
			},
			Totals: capacity.Totals{TotalCapacity: 40, TotalWorkload: 30, AvailableCapacity: 10},
		},
	}
	handler, err := NewHandler(Config{}, engine)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "tiller.get_capacity_snapshot", map[string]any{
		"team_id":      "team-1",
		"window_start": "2026-03-02T00:00:00Z",
		"window_end":   "2026-03-16T00:00:00Z",
	}))
	structured := toolResultStructured(t, callResp.Result)
	if got, _ := structured["team_id"].(string); got != "team-1" {
		t.Fatalf("team_id = %q, want team-1", got)
	}
	if !engine.lastStart.Equal(start) || !engine.lastEnd.Equal(end) {
		t.Fatalf("window passed = (%v, %v), want (%v, %v)", engine.lastStart, engine.lastEnd, start, end)
	}

	_, badResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tiller.get_capacity_snapshot", map[string]any{
		"team_id":      "team-1",
		"window_start": "yesterday",
	}))
	if isError, _ := badResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", badResp.Result["isError"])
	}
	if got := toolResultText(t, badResp.Result); !strings.Contains(got, "window_start must be RFC3339") {
		t.Fatalf("error text = %q, want RFC3339 message", got)
	}
}

// TestHandlerApplyRebalancePlanToolCall verifies plan binding and required-argument checks.
func TestHandlerApplyRebalancePlanToolCall(t *testing.T) {
	engine := &stubEngine{
		record: domain.RebalanceRecord{
			ID:           "rb-1",
			TeamID:       "team-1",
			AppliedCount: 1,
			Status:       domain.RecordApplied,
		},
	}
	handler, err := NewHandler(Config{}, engine)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "tiller.apply_rebalance_plan", map[string]any{
		"team_id":      "team-1",
		"triggered_by": "lead@example.com",
		"plan": map[string]any{
			"team_id": "team-1",
			"moves": []map[string]any{
				{"item_id": "wi-1", "from_member_id": "m1", "to_member_id": "m2", "points": 8},
			},
		},
	}))
	structured := toolResultStructured(t, callResp.Result)
	if got, _ := structured["id"].(string); got != "rb-1" {
		t.Fatalf("record id = %q, want rb-1", got)
	}
	if engine.lastTriggeredBy != "lead@example.com" {
		t.Fatalf("triggered_by = %q, want lead@example.com", engine.lastTriggeredBy)
	}
	if len(engine.lastPlan.Moves) != 1 || engine.lastPlan.Moves[0].ItemID != "wi-1" {
		t.Fatalf("plan passed = %#v, want one wi-1 move", engine.lastPlan.Moves)
	}

	_, missingResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "tiller.apply_rebalance_plan", map[string]any{
		"team_id": "team-1",
		"plan":    map[string]any{"team_id": "team-1"},
	}))
	if isError, _ := missingResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", missingResp.Result["isError"])
	}
	if got := toolResultText(t, missingResp.Result); !strings.Contains(got, `"triggered_by" not found`) {
		t.Fatalf("error text = %q, want required triggered_by message", got)
	}
}

// TestHandlerRebalanceHistoryToolCall verifies history tool wiring and limit passing.
func TestHandlerRebalanceHistoryToolCall(t *testing.T) {
	engine := &stubEngine{
		history: []domain.RebalanceRecord{
			{ID: "rb-2", TeamID: "team-1", Status: domain.RecordApplied},
			{ID: "rb-1", TeamID: "team-1", Status: domain.RecordFailed},
		},
	}
	handler, err := NewHandler(Config{}, engine)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "tiller.get_rebalance_history", map[string]any{
		"team_id": "team-1",
		"limit":   2,
	}))
	structured := toolResultStructured(t, callResp.Result)
	recordsRaw, ok := structured["records"].([]any)
	if !ok || len(recordsRaw) != 2 {
		t.Fatalf("records = %#v, want two rows", structured["records"])
	}
	if engine.lastLimit != 2 {
		t.Fatalf("limit = %d, want 2", engine.lastLimit)
	}
}

// TestHandlerToolCallRequiredArguments verifies required-argument enforcement surfaces as tool errors.
func TestHandlerToolCallRequiredArguments(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubEngine{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "tiller.get_dependency_graph", map[string]any{}))
	if isError, _ := callResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", callResp.Result["isError"])
	}
	if got := toolResultText(t, callResp.Result); !strings.Contains(got, `"scope_id"`) {
		t.Fatalf("error text = %q, want required scope_id message", got)
	}
}

// TestNewHandlerRequiresEngine verifies engine dependency enforcement.
func TestNewHandlerRequiresEngine(t *testing.T) {
	handler, err := NewHandler(Config{}, nil)
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
	if handler != nil {
		t.Fatalf("handler = %#v, want nil", handler)
	}
}

// TestNormalizeConfig verifies deterministic config defaults and path normalization.
func TestNormalizeConfig(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults",
			in:   Config{},
			want: Config{
				ServerName:    "tiller",
				ServerVersion: "dev",
				EndpointPath:  "/mcp",
			},
		},
		{
			name: "trimmed values and slash prefix",
			in: Config{
				ServerName:    " tiller-server ",
				ServerVersion: " v1.2.3 ",
				EndpointPath:  "custom/path",
			},
			want: Config{
				ServerName:    "tiller-server",
				ServerVersion: "v1.2.3",
				EndpointPath:  "/custom/path",
			},
		},
		{
			name: "endpoint trim of repeated slashes",
			in: Config{
				ServerName:    "tiller",
				ServerVersion: "dev",
				EndpointPath:  "///mcp///",
			},
			want: Config{
				ServerName:    "tiller",
				ServerVersion: "dev",
				EndpointPath:  "/mcp",
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeConfig(tt.in)
			if got.ServerName != tt.want.ServerName {
				t.Fatalf("ServerName = %q, want %q", got.ServerName, tt.want.ServerName)
			}
			if got.ServerVersion != tt.want.ServerVersion {
				t.Fatalf("ServerVersion = %q, want %q", got.ServerVersion, tt.want.ServerVersion)
			}
			if got.EndpointPath != tt.want.EndpointPath {
				t.Fatalf("EndpointPath = %q, want %q", got.EndpointPath, tt.want.EndpointPath)
			}
		})
	}
}

// TestHandlerServeHTTPUnavailable verifies nil handler paths fail closed with 503.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
	}{
		{
			name:    "nil receiver",
			handler: nil,
		},
		{
			name:    "missing inner http handler",
			handler: &Handler{},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()

			tt.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
			if !strings.Contains(rec.Body.String(), "mcp handler unavailable") {
				t.Fatalf("body = %q, want mcp handler unavailable", rec.Body.String())
			}
		})
	}
}

// TestToolResultFromErrorMapping verifies deterministic error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{
			name:       "nil error",
			err:        nil,
			wantPrefix: "unknown error",
		},
		{
			name:       "cycle detected",
			err:        app.ErrCycleDetected,
			wantPrefix: "cycle_detected:",
		},
		{
			name:       "invalid plan",
			err:        app.ErrInvalidPlan,
			wantPrefix: "invalid_plan:",
		},
		{
			name:       "not found",
			err:        app.ErrNotFound,
			wantPrefix: "not_found:",
		},
		{
			name:       "dependency missing",
			err:        domain.ErrDependencyNotFound,
			wantPrefix: "not_found:",
		},
		{
			name:       "duplicate dependency",
			err:        domain.ErrDependencyExists,
			wantPrefix: "invalid_request:",
		},
		{
			name:       "invalid window",
			err:        domain.ErrInvalidWindow,
			wantPrefix: "invalid_request:",
		},
		{
			name:       "internal",
			err:        errors.New("boom"),
			wantPrefix: "internal_error:",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			if got := callToolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}
