// Package common defines the app-facing service surface shared by the
// REST and MCP transports.
package common

import (
	"context"
	"time"

	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/capacity"
	"github.com/tillerhq/tiller/internal/domain"
	"github.com/tillerhq/tiller/internal/graph"
)

// EngineService is the rebalancing-engine surface exposed over every
// transport. *app.Service satisfies it.
type EngineService interface {
	GetDependencyGraph(ctx context.Context, scopeID string) (app.DependencyGraphResult, error)
	GetImpact(ctx context.Context, itemID string) (graph.Impact, error)
	AddDependency(ctx context.Context, itemID, dependsOnID string) (domain.WorkItem, error)
	RemoveDependency(ctx context.Context, itemID, dependsOnID string) (domain.WorkItem, error)
	GetCapacitySnapshot(ctx context.Context, teamID string, start, end time.Time) (capacity.TeamSnapshot, error)
	GenerateRebalancePlan(ctx context.Context, teamID, sprintID string) (domain.RebalancePlan, error)
	ApplyRebalancePlan(ctx context.Context, teamID string, plan domain.RebalancePlan, triggeredBy, sprintID string) (domain.RebalanceRecord, error)
	GetRebalanceHistory(ctx context.Context, teamID string, limit int) ([]domain.RebalanceRecord, error)
}
