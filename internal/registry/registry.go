// Package registry implements the Instance Registry: a transactional
// metadata store, backed by an embedded sqlite database, with atomic
// create/clone/delete/import operations.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/utils"
	"github.com/serverforge/serverforge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	version        TEXT NOT NULL,
	mod_loader     TEXT,
	loader_version TEXT,
	created_at     TEXT NOT NULL,
	last_run       TEXT,
	path           TEXT NOT NULL,
	settings       TEXT NOT NULL,
	schedules      TEXT NOT NULL
);`

// row mirrors the single table described in spec §4.5: identity, names,
// version strings, on-disk root, timestamps, and two opaque JSON blobs.
type row struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Version       string         `db:"version"`
	ModLoader     sql.NullString `db:"mod_loader"`
	LoaderVersion sql.NullString `db:"loader_version"`
	CreatedAt     string         `db:"created_at"`
	LastRun       sql.NullString `db:"last_run"`
	Path          string         `db:"path"`
	Settings      string         `db:"settings"`
	Schedules     string         `db:"schedules"`
}

// Registry is the transactional store of instance metadata.
type Registry struct {
	db  *sqlx.DB
	log *logging.Logger
}

// Open creates/migrates the sqlite database at dbPath and returns a Registry.
func Open(dbPath string, log *logging.Logger) (*Registry, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, errors.DatabaseError("open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.DatabaseError("migrate", err)
	}
	return &Registry{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// List returns every instance, enriched from each instance's
// server.properties (spec §4.5 "Enrichment").
func (r *Registry) List(ctx context.Context) ([]domain.Instance, error) {
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM instances ORDER BY name`); err != nil {
		return nil, errors.DatabaseError("list", err)
	}
	instances := make([]domain.Instance, 0, len(rows))
	for _, rw := range rows {
		inst, err := fromRow(rw)
		if err != nil {
			return nil, err
		}
		enrich(&inst)
		instances = append(instances, inst)
	}
	return instances, nil
}

// GetByID fetches a single instance by id, enriched from disk.
func (r *Registry) GetByID(ctx context.Context, id uuid.UUID) (domain.Instance, error) {
	var rw row
	err := r.db.GetContext(ctx, &rw, `SELECT * FROM instances WHERE id = ?`, id.String())
	if err == sql.ErrNoRows {
		return domain.Instance{}, errors.NotFound("instance", id.String())
	}
	if err != nil {
		return domain.Instance{}, errors.DatabaseError("get_by_id", err)
	}
	inst, err := fromRow(rw)
	if err != nil {
		return domain.Instance{}, err
	}
	enrich(&inst)
	return inst, nil
}

// GetByName fetches a single instance by its unique display name.
func (r *Registry) GetByName(ctx context.Context, name string) (domain.Instance, error) {
	var rw row
	err := r.db.GetContext(ctx, &rw, `SELECT * FROM instances WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return domain.Instance{}, errors.NotFound("instance", name)
	}
	if err != nil {
		return domain.Instance{}, errors.DatabaseError("get_by_name", err)
	}
	inst, err := fromRow(rw)
	if err != nil {
		return domain.Instance{}, err
	}
	enrich(&inst)
	return inst, nil
}

// CreateParams describes a new instance.
type CreateParams struct {
	Name          string
	Version       string
	ModLoader     string
	LoaderVersion string
	BaseDir       string // parent directory under which <id> is created
	Settings      domain.InstanceSettings
}

// Create allocates an identifier, creates the instance directory, and
// inserts the row. On directory-creation failure nothing is inserted; on
// insert failure the directory is removed best-effort (spec §4.5 "Create").
func (r *Registry) Create(ctx context.Context, p CreateParams) (domain.Instance, error) {
	if err := utils.ValidateRequired(map[string]string{"name": p.Name, "version": p.Version}); err != nil {
		return domain.Instance{}, errors.Validation(err.Error())
	}
	if _, err := r.GetByName(ctx, p.Name); err == nil {
		return domain.Instance{}, errors.AlreadyExists("instance", p.Name)
	}

	id := uuid.New()
	dir := filepath.Join(p.BaseDir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Instance{}, errors.Internal("create instance directory", err)
	}

	inst := domain.Instance{
		ID:            id,
		Name:          p.Name,
		Version:       p.Version,
		ModLoader:     p.ModLoader,
		LoaderVersion: p.LoaderVersion,
		CreatedAt:     time.Now().UTC(),
		Path:          dir,
		Settings:      p.Settings,
		Schedules:     []domain.ScheduledTask{},
	}

	if err := r.insert(ctx, inst); err != nil {
		os.RemoveAll(dir)
		return domain.Instance{}, err
	}
	return inst, nil
}

func (r *Registry) insert(ctx context.Context, inst domain.Instance) error {
	settingsJSON, err := json.Marshal(inst.Settings)
	if err != nil {
		return errors.Internal("marshal settings", err)
	}
	schedulesJSON, err := json.Marshal(inst.Schedules)
	if err != nil {
		return errors.Internal("marshal schedules", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, version, mod_loader, loader_version, created_at, last_run, path, settings, schedules)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.Name, inst.Version,
		nullableString(inst.ModLoader), nullableString(inst.LoaderVersion),
		inst.CreatedAt.Format(time.RFC3339Nano), nullableTime(inst.LastRun),
		inst.Path, string(settingsJSON), string(schedulesJSON),
	)
	if err != nil {
		return errors.DatabaseError("insert", err)
	}
	return nil
}

// UpdateSettings replaces settings and optionally renames the instance.
func (r *Registry) UpdateSettings(ctx context.Context, id uuid.UUID, settings domain.InstanceSettings, newName string) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return errors.Internal("marshal settings", err)
	}

	if newName != "" {
		_, err = r.db.ExecContext(ctx, `UPDATE instances SET settings = ?, name = ? WHERE id = ?`, string(settingsJSON), newName, id.String())
	} else {
		_, err = r.db.ExecContext(ctx, `UPDATE instances SET settings = ? WHERE id = ?`, string(settingsJSON), id.String())
	}
	if err != nil {
		return errors.DatabaseError("update_settings", err)
	}
	return nil
}

// UpdateLastRun stamps the instance's last-run timestamp to now.
func (r *Registry) UpdateLastRun(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE instances SET last_run = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return errors.DatabaseError("update_last_run", err)
	}
	return nil
}

// AppendSchedule adds a scheduled task to the instance's schedule list.
func (r *Registry) AppendSchedule(ctx context.Context, id uuid.UUID, task domain.ScheduledTask) error {
	inst, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	inst.Schedules = append(inst.Schedules, task)
	return r.writeSchedules(ctx, id, inst.Schedules)
}

// UpdateScheduleLastRun stamps the last-run time on a scheduled task, so the
// Scheduler's due-task dedup survives a process restart (spec §4.9 "the
// scheduler is rebuilt from all instances at process startup").
func (r *Registry) UpdateScheduleLastRun(ctx context.Context, instanceID, taskID uuid.UUID, runAt time.Time) error {
	inst, err := r.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	for i := range inst.Schedules {
		if inst.Schedules[i].ID == taskID {
			inst.Schedules[i].LastRun = &runAt
		}
	}
	return r.writeSchedules(ctx, instanceID, inst.Schedules)
}

// RemoveSchedule removes a scheduled task by id.
func (r *Registry) RemoveSchedule(ctx context.Context, instanceID, taskID uuid.UUID) error {
	inst, err := r.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	filtered := inst.Schedules[:0]
	for _, t := range inst.Schedules {
		if t.ID != taskID {
			filtered = append(filtered, t)
		}
	}
	return r.writeSchedules(ctx, instanceID, filtered)
}

func (r *Registry) writeSchedules(ctx context.Context, id uuid.UUID, schedules []domain.ScheduledTask) error {
	schedulesJSON, err := json.Marshal(schedules)
	if err != nil {
		return errors.Internal("marshal schedules", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE instances SET schedules = ? WHERE id = ?`, string(schedulesJSON), id.String())
	if err != nil {
		return errors.DatabaseError("update_schedules", err)
	}
	return nil
}

// Delete removes the row then removes the directory recursively,
// best-effort (spec §4.5 "Delete": partial success is acceptable and logged).
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	inst, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id.String()); err != nil {
		return errors.DatabaseError("delete", err)
	}

	if err := os.RemoveAll(inst.Path); err != nil {
		if r.log != nil {
			r.log.WithError(err).WithFields(map[string]interface{}{"instance_id": id.String()}).
				Warn("failed to fully remove instance directory on delete")
		}
	}
	return nil
}

func fromRow(rw row) (domain.Instance, error) {
	id, err := uuid.Parse(rw.ID)
	if err != nil {
		return domain.Instance{}, errors.DatabaseError("parse id", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rw.CreatedAt)
	if err != nil {
		return domain.Instance{}, errors.DatabaseError("parse created_at", err)
	}

	var settings domain.InstanceSettings
	if err := json.Unmarshal([]byte(rw.Settings), &settings); err != nil {
		return domain.Instance{}, errors.DatabaseError("unmarshal settings", err)
	}
	var schedules []domain.ScheduledTask
	if err := json.Unmarshal([]byte(rw.Schedules), &schedules); err != nil {
		return domain.Instance{}, errors.DatabaseError("unmarshal schedules", err)
	}

	inst := domain.Instance{
		ID:            id,
		Name:          rw.Name,
		Version:       rw.Version,
		ModLoader:     rw.ModLoader.String,
		LoaderVersion: rw.LoaderVersion.String,
		CreatedAt:     createdAt,
		Path:          rw.Path,
		Settings:      settings,
		Schedules:     schedules,
	}
	if rw.LastRun.Valid {
		t, err := time.Parse(time.RFC3339Nano, rw.LastRun.String)
		if err == nil {
			inst.LastRun = &t
		}
	}
	return inst, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
