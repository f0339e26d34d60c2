package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package. It also
// implements app.AuditSink via Record.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			name TEXT NOT NULL,
			base_capacity REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT,
			FOREIGN KEY(team_id) REFERENCES teams(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sprints (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			name TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(team_id) REFERENCES teams(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'task',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			priority TEXT NOT NULL DEFAULT 'medium',
			points REAL,
			estimated_hours REAL,
			assignee TEXT NOT NULL DEFAULT '',
			dependencies_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS capacity_adjustments (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			adjusted_capacity REAL NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(member_id) REFERENCES members(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			title TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			impact_percent REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY(member_id) REFERENCES members(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS rebalance_records (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL,
			sprint_id TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL,
			plan_json TEXT NOT NULL DEFAULT '{}',
			outcomes_json TEXT NOT NULL DEFAULT '[]',
			applied_count INTEGER NOT NULL DEFAULT 0,
			skipped_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(team_id) REFERENCES teams(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id TEXT NOT NULL DEFAULT '',
			item_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_members_team ON members(team_id);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_project_parent ON work_items(project_id, parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_assignee ON work_items(assignee);`,
		`CREATE INDEX IF NOT EXISTS idx_capacity_adjustments_member ON capacity_adjustments(member_id, start_at);`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_member ON calendar_events(member_id, start_at);`,
		`CREATE INDEX IF NOT EXISTS idx_rebalance_records_team_created_at ON rebalance_records(team_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_team_occurred_at ON audit_events(team_id, occurred_at DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateWorkItem creates work item.
func (r *Repository) CreateWorkItem(ctx context.Context, item domain.WorkItem) error {
	depsJSON, err := json.Marshal(domain.NormalizeIDList(item.Dependencies))
	if err != nil {
		return fmt.Errorf("encode work item dependencies: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO work_items(id, project_id, parent_id, kind, title, description, status, priority, points, estimated_hours, assignee, dependencies_json, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.ProjectID, item.ParentID, string(item.Kind), item.Title, item.Description,
		string(item.Status), string(item.Priority), item.Points, item.EstimatedHours,
		item.Assignee, string(depsJSON), ts(item.CreatedAt), ts(item.UpdatedAt), nullableTS(item.ArchivedAt))
	return err
}

// UpdateWorkItem updates state for the requested operation.
func (r *Repository) UpdateWorkItem(ctx context.Context, item domain.WorkItem) error {
	depsJSON, err := json.Marshal(domain.NormalizeIDList(item.Dependencies))
	if err != nil {
		return fmt.Errorf("encode work item dependencies: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_items
		SET project_id = ?, parent_id = ?, kind = ?, title = ?, description = ?, status = ?, priority = ?,
			points = ?, estimated_hours = ?, assignee = ?, dependencies_json = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, item.ProjectID, item.ParentID, string(item.Kind), item.Title, item.Description,
		string(item.Status), string(item.Priority), item.Points, item.EstimatedHours,
		item.Assignee, string(depsJSON), ts(item.UpdatedAt), nullableTS(item.ArchivedAt), item.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// workItemColumns is the canonical select list for work item scans.
const workItemColumns = `id, project_id, parent_id, kind, title, description, status, priority, points, estimated_hours, assignee, dependencies_json, created_at, updated_at, archived_at`

// GetWorkItem returns work item.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE id = ?
	`, id)
	return scanWorkItem(row)
}

// ListWorkItemsByProject lists the work items of one project.
func (r *Repository) ListWorkItemsByProject(ctx context.Context, projectID string) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

// ListWorkItemsByParent lists the direct children of one work item.
func (r *Repository) ListWorkItemsByParent(ctx context.Context, parentID string) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE parent_id = ?
		ORDER BY created_at ASC, id ASC
	`, parentID)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

// ListWorkItemsByAssignees lists the work items assigned to any of the members.
func (r *Repository) ListWorkItemsByAssignees(ctx context.Context, memberIDs []string) ([]domain.WorkItem, error) {
	if len(memberIDs) == 0 {
		return []domain.WorkItem{}, nil
	}
	placeholders := strings.Repeat("?, ", len(memberIDs)-1) + "?"
	args := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE assignee IN (`+placeholders+`)
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

// CreateTeam creates team.
func (r *Repository) CreateTeam(ctx context.Context, team domain.Team) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teams(id, name, description, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, team.ID, team.Name, team.Description, ts(team.CreatedAt), ts(team.UpdatedAt), nullableTS(team.ArchivedAt))
	return err
}

// GetTeam returns team.
func (r *Repository) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at, archived_at
		FROM teams
		WHERE id = ?
	`, id)
	return scanTeam(row)
}

// ListTeams lists teams.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at, archived_at
		FROM teams
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Team{}
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, team)
	}
	return out, rows.Err()
}

// CreateMember creates member.
func (r *Repository) CreateMember(ctx context.Context, member domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members(id, team_id, name, base_capacity, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, member.ID, member.TeamID, member.Name, member.BaseCapacity, ts(member.CreatedAt), ts(member.UpdatedAt), nullableTS(member.ArchivedAt))
	return err
}

// GetMember returns member.
func (r *Repository) GetMember(ctx context.Context, id string) (domain.Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, base_capacity, created_at, updated_at, archived_at
		FROM members
		WHERE id = ?
	`, id)
	return scanMember(row)
}

// ListMembersByTeam lists the members of one team.
func (r *Repository) ListMembersByTeam(ctx context.Context, teamID string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, team_id, name, base_capacity, created_at, updated_at, archived_at
		FROM members
		WHERE team_id = ? AND archived_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, rows.Err()
}

// CreateSprint creates sprint.
func (r *Repository) CreateSprint(ctx context.Context, sprint domain.Sprint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sprints(id, team_id, name, start_at, end_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sprint.ID, sprint.TeamID, sprint.Name, ts(sprint.StartAt), ts(sprint.EndAt), ts(sprint.CreatedAt), ts(sprint.UpdatedAt))
	return err
}

// GetSprint returns sprint.
func (r *Repository) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	var (
		sprint     domain.Sprint
		startRaw   string
		endRaw     string
		createdRaw string
		updatedRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, start_at, end_at, created_at, updated_at
		FROM sprints
		WHERE id = ?
	`, id).Scan(&sprint.ID, &sprint.TeamID, &sprint.Name, &startRaw, &endRaw, &createdRaw, &updatedRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sprint{}, app.ErrNotFound
		}
		return domain.Sprint{}, err
	}
	sprint.StartAt = parseTS(startRaw)
	sprint.EndAt = parseTS(endRaw)
	sprint.CreatedAt = parseTS(createdRaw)
	sprint.UpdatedAt = parseTS(updatedRaw)
	return sprint, nil
}

// CreateCapacityAdjustment creates capacity adjustment.
func (r *Repository) CreateCapacityAdjustment(ctx context.Context, adj domain.CapacityAdjustment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO capacity_adjustments(id, member_id, start_at, end_at, adjusted_capacity, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, adj.ID, adj.MemberID, ts(adj.StartAt), ts(adj.EndAt), adj.AdjustedCapacity, adj.Reason, ts(adj.CreatedAt))
	return err
}

// ListCapacityAdjustmentsByMembers lists adjustments for the members.
func (r *Repository) ListCapacityAdjustmentsByMembers(ctx context.Context, memberIDs []string) ([]domain.CapacityAdjustment, error) {
	if len(memberIDs) == 0 {
		return []domain.CapacityAdjustment{}, nil
	}
	placeholders := strings.Repeat("?, ", len(memberIDs)-1) + "?"
	args := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, start_at, end_at, adjusted_capacity, reason, created_at
		FROM capacity_adjustments
		WHERE member_id IN (`+placeholders+`)
		ORDER BY start_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.CapacityAdjustment{}
	for rows.Next() {
		var (
			adj        domain.CapacityAdjustment
			startRaw   string
			endRaw     string
			createdRaw string
		)
		if err := rows.Scan(&adj.ID, &adj.MemberID, &startRaw, &endRaw, &adj.AdjustedCapacity, &adj.Reason, &createdRaw); err != nil {
			return nil, err
		}
		adj.StartAt = parseTS(startRaw)
		adj.EndAt = parseTS(endRaw)
		adj.CreatedAt = parseTS(createdRaw)
		out = append(out, adj)
	}
	return out, rows.Err()
}

// CreateCalendarEvent creates calendar event.
func (r *Repository) CreateCalendarEvent(ctx context.Context, ev domain.CalendarEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_events(id, member_id, title, start_at, end_at, impact_percent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.MemberID, ev.Title, ts(ev.StartAt), ts(ev.EndAt), ev.ImpactPercent, ts(ev.CreatedAt))
	return err
}

// ListCalendarEventsByMembers lists calendar events for the members.
func (r *Repository) ListCalendarEventsByMembers(ctx context.Context, memberIDs []string) ([]domain.CalendarEvent, error) {
	if len(memberIDs) == 0 {
		return []domain.CalendarEvent{}, nil
	}
	placeholders := strings.Repeat("?, ", len(memberIDs)-1) + "?"
	args := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, title, start_at, end_at, impact_percent, created_at
		FROM calendar_events
		WHERE member_id IN (`+placeholders+`)
		ORDER BY start_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.CalendarEvent{}
	for rows.Next() {
		var (
			ev         domain.CalendarEvent
			startRaw   string
			endRaw     string
			createdRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.MemberID, &ev.Title, &startRaw, &endRaw, &ev.ImpactPercent, &createdRaw); err != nil {
			return nil, err
		}
		ev.StartAt = parseTS(startRaw)
		ev.EndAt = parseTS(endRaw)
		ev.CreatedAt = parseTS(createdRaw)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// CreateRebalanceRecord creates rebalance record. Records are append-only.
func (r *Repository) CreateRebalanceRecord(ctx context.Context, record domain.RebalanceRecord) error {
	planJSON, err := json.Marshal(record.Plan)
	if err != nil {
		return fmt.Errorf("encode rebalance plan: %w", err)
	}
	outcomesJSON, err := json.Marshal(record.Outcomes)
	if err != nil {
		return fmt.Errorf("encode rebalance outcomes: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rebalance_records(id, team_id, sprint_id, triggered_by, plan_json, outcomes_json, applied_count, skipped_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.TeamID, record.SprintID, record.TriggeredBy,
		string(planJSON), string(outcomesJSON), record.AppliedCount, record.SkippedCount,
		string(record.Status), ts(record.CreatedAt))
	return err
}

// ListRebalanceRecordsByTeam lists a team's rebalance records newest first.
func (r *Repository) ListRebalanceRecordsByTeam(ctx context.Context, teamID string, limit int) ([]domain.RebalanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, team_id, sprint_id, triggered_by, plan_json, outcomes_json, applied_count, skipped_count, status, created_at
		FROM rebalance_records
		WHERE team_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RebalanceRecord{}
	for rows.Next() {
		var (
			record      domain.RebalanceRecord
			planRaw     string
			outcomesRaw string
			statusRaw   string
			createdRaw  string
		)
		if err := rows.Scan(&record.ID, &record.TeamID, &record.SprintID, &record.TriggeredBy,
			&planRaw, &outcomesRaw, &record.AppliedCount, &record.SkippedCount, &statusRaw, &createdRaw); err != nil {
			return nil, err
		}
		if strings.TrimSpace(planRaw) == "" {
			planRaw = "{}"
		}
		if err := json.Unmarshal([]byte(planRaw), &record.Plan); err != nil {
			return nil, fmt.Errorf("decode plan_json: %w", err)
		}
		if strings.TrimSpace(outcomesRaw) == "" {
			outcomesRaw = "[]"
		}
		if err := json.Unmarshal([]byte(outcomesRaw), &record.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes_json: %w", err)
		}
		record.Status = domain.RecordStatus(statusRaw)
		record.CreatedAt = parseTS(createdRaw)
		out = append(out, record)
	}
	return out, rows.Err()
}

// Record appends an audit event. Implements app.AuditSink.
func (r *Repository) Record(ctx context.Context, event domain.AuditEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events(team_id, item_id, operation, actor_id, metadata_json, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.TeamID, event.ItemID, string(event.Operation), event.ActorID, string(metaJSON), ts(event.OccurredAt))
	return err
}

// ListAuditEvents lists recent audit events for a team, newest first.
func (r *Repository) ListAuditEvents(ctx context.Context, teamID string, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, team_id, item_id, operation, actor_id, metadata_json, occurred_at
		FROM audit_events
		WHERE team_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AuditEvent{}
	for rows.Next() {
		var (
			event       domain.AuditEvent
			opRaw       string
			metadataRaw string
			occurredRaw string
		)
		if err := rows.Scan(&event.ID, &event.TeamID, &event.ItemID, &opRaw, &event.ActorID, &metadataRaw, &occurredRaw); err != nil {
			return nil, err
		}
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata_json: %w", err)
		}
		event.Operation = domain.AuditOperation(opRaw)
		event.OccurredAt = parseTS(occurredRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// collectWorkItems drains rows into work items.
func collectWorkItems(rows *sql.Rows) ([]domain.WorkItem, error) {
	defer rows.Close()
	out := []domain.WorkItem{}
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// scanWorkItem handles scan work item.
func scanWorkItem(s scanner) (domain.WorkItem, error) {
	var (
		item       domain.WorkItem
		kindRaw    string
		statusRaw  string
		prioRaw    string
		points     sql.NullFloat64
		hours      sql.NullFloat64
		depsRaw    string
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(
		&item.ID,
		&item.ProjectID,
		&item.ParentID,
		&kindRaw,
		&item.Title,
		&item.Description,
		&statusRaw,
		&prioRaw,
		&points,
		&hours,
		&item.Assignee,
		&depsRaw,
		&createdRaw,
		&updatedRaw,
		&archived,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	item.Kind = domain.WorkItemKind(kindRaw)
	if strings.TrimSpace(kindRaw) == "" {
		item.Kind = domain.KindTask
	}
	item.Status = domain.NormalizeStatus(domain.Status(statusRaw))
	item.Priority = domain.Priority(prioRaw)
	if points.Valid {
		item.Points = &points.Float64
	}
	if hours.Valid {
		item.EstimatedHours = &hours.Float64
	}
	if strings.TrimSpace(depsRaw) == "" {
		depsRaw = "[]"
	}
	if err := json.Unmarshal([]byte(depsRaw), &item.Dependencies); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode dependencies_json: %w", err)
	}
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	item.ArchivedAt = parseNullTS(archived)
	return item, nil
}

// scanTeam handles scan team.
func scanTeam(s scanner) (domain.Team, error) {
	var (
		team       domain.Team
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&team.ID, &team.Name, &team.Description, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Team{}, app.ErrNotFound
		}
		return domain.Team{}, err
	}
	team.CreatedAt = parseTS(createdRaw)
	team.UpdatedAt = parseTS(updatedRaw)
	team.ArchivedAt = parseNullTS(archived)
	return team, nil
}

// scanMember handles scan member.
func scanMember(s scanner) (domain.Member, error) {
	var (
		member     domain.Member
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&member.ID, &member.TeamID, &member.Name, &member.BaseCapacity, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Member{}, app.ErrNotFound
		}
		return domain.Member{}, err
	}
	member.CreatedAt = parseTS(createdRaw)
	member.UpdatedAt = parseTS(updatedRaw)
	member.ArchivedAt = parseNullTS(archived)
	return member, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}
