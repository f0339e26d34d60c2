// Package mcpapi provides a stateless MCP streamable-HTTP adapter over
// the engine service.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tillerhq/tiller/internal/adapters/server/common"
	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the engine tools.
func NewHandler(cfg Config, engine common.EngineService) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerGraphTools(mcpSrv, engine)
	registerDependencyTools(mcpSrv, engine)
	registerCapacityTools(mcpSrv, engine)
	registerRebalanceTools(mcpSrv, engine)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "tiller"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerGraphTools registers the read-only graph analysis tools.
func registerGraphTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"tiller.get_dependency_graph",
			mcp.WithDescription("Build and analyze the dependency graph for one scope (story id or project id)."),
			mcp.WithString("scope_id", mcp.Required(), mcp.Description("Story or project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scopeID, err := req.RequireString("scope_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := engine.GetDependencyGraph(ctx, scopeID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode get_dependency_graph result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tiller.get_impact",
			mcp.WithDescription("Compute transitive blockers and dependents of one work item."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Work item identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := engine.GetImpact(ctx, itemID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode get_impact result: %w", err)
			}
			return result, nil
		},
	)
}

// registerDependencyTools registers the dependency mutation tools.
func registerDependencyTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"tiller.add_dependency",
			mcp.WithDescription("Record that one work item depends on another; rejected when it would create a cycle."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Dependent work item identifier")),
			mcp.WithString("depends_on", mcp.Required(), mcp.Description("Identifier of the item that must complete first")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dependsOn, err := req.RequireString("depends_on")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := engine.AddDependency(ctx, itemID, dependsOn)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"item_id":      item.ID,
				"dependencies": item.Dependencies,
			})
			if err != nil {
				return nil, fmt.Errorf("encode add_dependency result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tiller.remove_dependency",
			mcp.WithDescription("Remove one dependency reference from a work item."),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("Dependent work item identifier")),
			mcp.WithString("depends_on", mcp.Required(), mcp.Description("Dependency identifier to remove")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			itemID, err := req.RequireString("item_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dependsOn, err := req.RequireString("depends_on")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			item, err := engine.RemoveDependency(ctx, itemID, dependsOn)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"item_id":      item.ID,
				"dependencies": item.Dependencies,
			})
			if err != nil {
				return nil, fmt.Errorf("encode remove_dependency result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCapacityTools registers the capacity snapshot tool.
func registerCapacityTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"tiller.get_capacity_snapshot",
			mcp.WithDescription("Compute per-member effective capacity, workload, and utilization for one team."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team identifier")),
			mcp.WithString("window_start", mcp.Description("RFC3339 window start (defaults to now)")),
			mcp.WithString("window_end", mcp.Description("RFC3339 window end (defaults to 14 days out)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamID, err := req.RequireString("team_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			start, err := parseTimeArg(req.GetString("window_start", ""))
			if err != nil {
				return mcp.NewToolResultError("invalid_request: window_start must be RFC3339"), nil
			}
			end, err := parseTimeArg(req.GetString("window_end", ""))
			if err != nil {
				return mcp.NewToolResultError("invalid_request: window_end must be RFC3339"), nil
			}
			out, err := engine.GetCapacitySnapshot(ctx, teamID, start, end)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode get_capacity_snapshot result: %w", err)
			}
			return result, nil
		},
	)
}

// registerRebalanceTools registers plan generation, application, and history tools.
func registerRebalanceTools(srv *mcpserver.MCPServer, engine common.EngineService) {
	srv.AddTool(
		mcp.NewTool(
			"tiller.generate_rebalance_plan",
			mcp.WithDescription("Generate a greedy workload rebalance plan for one team."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team identifier")),
			mcp.WithString("sprint_id", mcp.Description("Optional sprint to scope the planning window")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamID, err := req.RequireString("team_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			plan, err := engine.GenerateRebalancePlan(ctx, teamID, req.GetString("sprint_id", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(plan)
			if err != nil {
				return nil, fmt.Errorf("encode generate_rebalance_plan result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tiller.apply_rebalance_plan",
			mcp.WithDescription("Apply an accepted rebalance plan move by move and persist the outcome record."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team identifier")),
			mcp.WithString("triggered_by", mcp.Required(), mcp.Description("User applying the plan")),
			mcp.WithString("sprint_id", mcp.Description("Optional sprint identifier")),
			mcp.WithObject("plan", mcp.Required(), mcp.Description("Plan object from generate_rebalance_plan")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				TeamID      string               `json:"team_id"`
				TriggeredBy string               `json:"triggered_by"`
				SprintID    string               `json:"sprint_id"`
				Plan        domain.RebalancePlan `json:"plan"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.TeamID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "team_id" not found`), nil
			}
			if strings.TrimSpace(args.TriggeredBy) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "triggered_by" not found`), nil
			}
			record, err := engine.ApplyRebalancePlan(ctx, args.TeamID, args.Plan, args.TriggeredBy, args.SprintID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(record)
			if err != nil {
				return nil, fmt.Errorf("encode apply_rebalance_plan result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"tiller.get_rebalance_history",
			mcp.WithDescription("List a team's rebalance records newest first."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum records to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamID, err := req.RequireString("team_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			records, err := engine.GetRebalanceHistory(ctx, teamID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"records": records})
			if err != nil {
				return nil, fmt.Errorf("encode get_rebalance_history result: %w", err)
			}
			return result, nil
		},
	)
}

// parseTimeArg parses an optional RFC3339 tool argument.
func parseTimeArg(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// toolResultFromError maps service errors into coded MCP tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrCycleDetected):
		return mcp.NewToolResultError("cycle_detected: " + err.Error())
	case errors.Is(err, app.ErrInvalidPlan):
		return mcp.NewToolResultError("invalid_plan: " + err.Error())
	case errors.Is(err, app.ErrNotFound), errors.Is(err, domain.ErrDependencyNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrDependencyExists),
		errors.Is(err, domain.ErrSelfDependency),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidID):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult wraps malformed-argument failures.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
