package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docintake/internal/common"
	"github.com/joseph-ayodele/docintake/internal/entity"
)

const (
	tableAssets = "compliance_assets"
	tableLinks  = "compliance_links"
)

var linkColumns = []string{
	"id", "job_id", "building_id", "asset_id", "due_date", "reminder_date",
	"reminder_label", "reminder_reason", "created_at", "notified_at",
}

// ComplianceRepository is the SQL catalog, link sink and reminder store.
type ComplianceRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewComplianceRepository(drv *entsql.Driver, logger *slog.Logger) *ComplianceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComplianceRepository{drv: drv, logger: logger}
}

func (r *ComplianceRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

// SeedAssets inserts catalog rows that do not exist yet. buildingID "" seeds the master catalog.
func (r *ComplianceRepository) SeedAssets(ctx context.Context, buildingID string, assets []entity.ComplianceAsset) error {
	for _, a := range assets {
		aliases, err := json.Marshal(a.Aliases)
		if err != nil {
			return fmt.Errorf("encode aliases for %s: %w", a.Key, err)
		}
		var building any
		if buildingID != "" {
			building = buildingID
		}
		q, args := r.builder().Insert(tableAssets).
			Columns("id", "building_id", "asset_key", "name", "category", "frequency_months", "aliases").
			Values(a.ID, building, a.Key, a.Name, a.Category, a.FrequencyMonths, string(aliases)).
			OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
			Query()
		var res stdsql.Result
		if err := r.drv.Exec(ctx, q, args, &res); err != nil {
			r.logger.Error("failed to seed compliance asset", "asset", a.Key, "error", err)
			return fmt.Errorf("%w: seed %s: %v", common.ErrDatabase, a.Key, err)
		}
	}
	r.logger.Info("compliance.catalog.seeded", "building_id", buildingID, "assets", len(assets))
	return nil
}

// ListAssets returns the master catalog plus any assets specific to buildingID.
func (r *ComplianceRepository) ListAssets(ctx context.Context, buildingID string) ([]entity.ComplianceAsset, error) {
	b := r.builder()
	sel := b.Select("id", "asset_key", "name", "category", "frequency_months", "aliases").From(b.Table(tableAssets))
	if buildingID != "" {
		sel.Where(entsql.Or(entsql.IsNull("building_id"), entsql.EQ("building_id", buildingID)))
	} else {
		sel.Where(entsql.IsNull("building_id"))
	}
	q, args := sel.OrderBy("name", "id").Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: list assets: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.ComplianceAsset
	for rows.Next() {
		var (
			a       entity.ComplianceAsset
			aliases string
		)
		if err := rows.Scan(&a.ID, &a.Key, &a.Name, &a.Category, &a.FrequencyMonths, &aliases); err != nil {
			return nil, fmt.Errorf("%w: scan asset: %v", common.ErrDatabase, err)
		}
		if aliases != "" {
			if err := json.Unmarshal([]byte(aliases), &a.Aliases); err != nil {
				r.logger.Warn("compliance.asset.bad_aliases", "asset_id", a.ID, "error", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// Link records the job's asset association. Re-linking the same job replaces the row and
// re-arms its reminder.
func (r *ComplianceRepository) Link(ctx context.Context, l entity.ComplianceLink) (entity.ComplianceLink, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = dbTime(l.CreatedAt)
	q, args := r.builder().Insert(tableLinks).
		Columns("job_id", "building_id", "asset_id", "due_date", "reminder_date", "reminder_label", "reminder_reason", "created_at", "notified_at").
		Values(l.JobID, l.BuildingID, l.AssetID, strArg(l.DueDate), strArg(l.ReminderDate), l.ReminderLabel, l.ReminderReason, l.CreatedAt, nil).
		OnConflict(entsql.ConflictColumns("job_id"), entsql.ResolveWithNewValues()).
		Returning("id").
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to write compliance link", "job_id", l.JobID, "asset_id", l.AssetID, "error", err)
		return l, fmt.Errorf("%w: link: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&l.ID); err != nil {
			return l, fmt.Errorf("%w: scan link id: %v", common.ErrDatabase, err)
		}
	}
	if err := rows.Err(); err != nil {
		return l, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.logger.Info("compliance.link.saved", "link_id", l.ID, "job_id", l.JobID, "asset_id", l.AssetID, "due_date", l.DueDate)
	return l, nil
}

// Unlink drops any association left for jobID by an earlier run.
func (r *ComplianceRepository) Unlink(ctx context.Context, jobID uuid.UUID) error {
	q, args := r.builder().Delete(tableLinks).Where(entsql.EQ("job_id", jobID)).Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to remove compliance link", "job_id", jobID, "error", err)
		return fmt.Errorf("%w: unlink: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Info("compliance.link.removed", "job_id", jobID)
	}
	return nil
}

// DueReminders lists unnotified links whose reminder date is on or before asOf.
func (r *ComplianceRepository) DueReminders(ctx context.Context, asOf time.Time) ([]entity.ComplianceLink, error) {
	b := r.builder()
	q, args := b.Select(linkColumns...).From(b.Table(tableLinks)).
		Where(entsql.And(
			entsql.NotNull("reminder_date"),
			entsql.LTE("reminder_date", asOf.UTC().Format(time.DateOnly)),
			entsql.IsNull("notified_at"),
		)).
		OrderBy("reminder_date", "id").
		Query()
	return r.queryLinks(ctx, q, args)
}

// LinksForJob returns the link written for jobID, if any.
func (r *ComplianceRepository) LinksForJob(ctx context.Context, jobID uuid.UUID) ([]entity.ComplianceLink, error) {
	b := r.builder()
	q, args := b.Select(linkColumns...).From(b.Table(tableLinks)).Where(entsql.EQ("job_id", jobID)).Query()
	return r.queryLinks(ctx, q, args)
}

func (r *ComplianceRepository) MarkNotified(ctx context.Context, linkID int64, at time.Time) error {
	q, args := r.builder().Update(tableLinks).
		Set("notified_at", dbTime(at)).
		Where(entsql.And(entsql.EQ("id", linkID), entsql.IsNull("notified_at"))).
		Query()
	var res stdsql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("%w: mark notified: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *ComplianceRepository) queryLinks(ctx context.Context, q string, args []any) ([]entity.ComplianceLink, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.ComplianceLink
	for rows.Next() {
		var (
			l           entity.ComplianceLink
			due, remind stdsql.NullString
			notified    stdsql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.BuildingID, &l.AssetID, &due, &remind,
			&l.ReminderLabel, &l.ReminderReason, &l.CreatedAt, &notified); err != nil {
			return nil, fmt.Errorf("%w: scan link: %v", common.ErrDatabase, err)
		}
		l.DueDate = nullString(due)
		l.ReminderDate = nullString(remind)
		if notified.Valid {
			t := notified.Time.UTC()
			l.NotifiedAt = &t
		}
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}
