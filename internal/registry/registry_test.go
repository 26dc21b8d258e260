package registry

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/serverforge/serverforge/internal/domain"
)

func openTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "instances.sqlite")
	r, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, dir
}

func TestCreate_InsertsAndCreatesDirectory(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{
		Name:     "survival",
		Version:  "1.20.4",
		BaseDir:  dir,
		Settings: domain.DefaultInstanceSettings(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := os.Stat(inst.Path); err != nil {
		t.Errorf("instance directory not created: %v", err)
	}

	got, err := r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "survival" {
		t.Errorf("Name = %v, want survival", got.Name)
	}
}

func TestCreate_DuplicateNameFails(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	params := CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()}
	if _, err := r.Create(ctx, params); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := r.Create(ctx, params); err == nil {
		t.Error("expected AlreadyExists error on duplicate name")
	}
}

func TestCreate_RejectsEmptyName(t *testing.T) {
	r, dir := openTestRegistry(t)
	_, err := r.Create(context.Background(), CreateParams{Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err == nil {
		t.Fatal("expected validation error for empty name")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	r, _ := openTestRegistry(t)
	_, err := r.GetByID(context.Background(), uuid.New())
	if err == nil {
		t.Error("expected NotFound error")
	}
}

func TestUpdateSettingsAndRename(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}

	newSettings := inst.Settings
	newSettings.Port = 25566
	if err := r.UpdateSettings(ctx, inst.ID, newSettings, "renamed"); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	got, err := r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" || got.Settings.Port != 25566 {
		t.Errorf("got = %+v", got)
	}
}

func TestScheduleAppendAndRemove(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}

	task := domain.ScheduledTask{ID: uuid.New(), InstanceID: inst.ID, Kind: domain.TaskBackup, Cron: "0 0 * * *"}
	if err := r.AppendSchedule(ctx, inst.ID, task); err != nil {
		t.Fatalf("AppendSchedule() error = %v", err)
	}

	got, err := r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Schedules) != 1 {
		t.Fatalf("Schedules = %v, want 1 entry", got.Schedules)
	}

	if err := r.RemoveSchedule(ctx, inst.ID, task.ID); err != nil {
		t.Fatalf("RemoveSchedule() error = %v", err)
	}
	got, err = r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Schedules) != 0 {
		t.Errorf("Schedules after remove = %v, want empty", got.Schedules)
	}
}

func TestUpdateScheduleLastRun_StampsMatchingTask(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}

	task := domain.ScheduledTask{ID: uuid.New(), InstanceID: inst.ID, Kind: domain.TaskRestart, Cron: "0 0 * * *"}
	if err := r.AppendSchedule(ctx, inst.ID, task); err != nil {
		t.Fatalf("AppendSchedule() error = %v", err)
	}

	runAt := time.Now().UTC().Truncate(time.Second)
	if err := r.UpdateScheduleLastRun(ctx, inst.ID, task.ID, runAt); err != nil {
		t.Fatalf("UpdateScheduleLastRun() error = %v", err)
	}

	got, err := r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Schedules) != 1 || got.Schedules[0].LastRun == nil {
		t.Fatalf("Schedules = %v, want 1 entry with LastRun set", got.Schedules)
	}
	if !got.Schedules[0].LastRun.Equal(runAt) {
		t.Errorf("LastRun = %v, want %v", got.Schedules[0].LastRun, runAt)
	}
}

func TestDelete_RemovesRowAndDirectory(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Delete(ctx, inst.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := r.GetByID(ctx, inst.ID); err == nil {
		t.Error("expected NotFound after delete")
	}
	if _, err := os.Stat(inst.Path); !os.IsNotExist(err) {
		t.Error("instance directory should be removed")
	}
}

func TestClone_CreatesIndependentCopy(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	src, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src.Path, "server.properties"), []byte("difficulty=easy\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var progressCalls int
	clone, err := r.Clone(ctx, src.ID, "Cloned", dir, func(cur, total int, name string) {
		progressCalls++
	})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if clone.ID == src.ID {
		t.Error("clone ID must differ from source")
	}
	if clone.Name != "Cloned" {
		t.Errorf("clone.Name = %v, want Cloned", clone.Name)
	}
	if clone.Version != src.Version {
		t.Errorf("clone.Version = %v, want %v", clone.Version, src.Version)
	}
	if progressCalls == 0 {
		t.Error("expected progress callback to be invoked")
	}

	data, err := os.ReadFile(filepath.Join(clone.Path, "server.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "difficulty=easy\n" {
		t.Errorf("cloned content = %q", data)
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d rows, want 2", len(all))
	}
}

func TestClone_RetainsSourceSchedules(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	src, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}
	task := domain.ScheduledTask{ID: uuid.New(), InstanceID: src.ID, Kind: domain.TaskBackup, Cron: "0 0 * * *"}
	if err := r.AppendSchedule(ctx, src.ID, task); err != nil {
		t.Fatalf("AppendSchedule() error = %v", err)
	}

	clone, err := r.Clone(ctx, src.ID, "Cloned", dir, nil)
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if len(clone.Schedules) != 1 || clone.Schedules[0].ID != task.ID {
		t.Fatalf("clone.Schedules = %v, want source's schedule copied", clone.Schedules)
	}

	got, err := r.GetByID(ctx, clone.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Schedules) != 1 {
		t.Errorf("persisted clone.Schedules = %v, want 1 entry", got.Schedules)
	}
}

func TestImport_FromDirectory(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "server.properties"), []byte("difficulty=normal\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	inst, err := r.Import(ctx, ImportParams{Name: "imported", SourcePath: source, BaseDir: dir})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(inst.Path, "server.properties")); err != nil {
		t.Errorf("expected imported file to exist: %v", err)
	}
}

func TestImport_FromZip(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	zipPath := filepath.Join(t.TempDir(), "pack.zip")
	writeTestZip(t, zipPath, map[string]string{
		"server.properties": "difficulty=hard\n",
	})

	inst, err := r.Import(ctx, ImportParams{Name: "zip-imported", SourcePath: zipPath, BaseDir: dir})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(inst.Path, "server.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "difficulty=hard\n" {
		t.Errorf("content = %q", data)
	}
}

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEnrich_OverlaysServerProperties(t *testing.T) {
	r, dir := openTestRegistry(t)
	ctx := context.Background()

	inst, err := r.Create(ctx, CreateParams{Name: "survival", Version: "1.20.4", BaseDir: dir, Settings: domain.DefaultInstanceSettings()})
	if err != nil {
		t.Fatal(err)
	}
	props := "server-ip=0.0.0.0\nserver-port=25566\nmax-players=42\nmotd=Hello World\n"
	if err := os.WriteFile(filepath.Join(inst.Path, "server.properties"), []byte(props), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetByID(ctx, inst.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Runtime.Port != 25566 || got.Runtime.MaxPlayers != 42 || got.Runtime.MOTD != "Hello World" {
		t.Errorf("Runtime = %+v", got.Runtime)
	}
}
