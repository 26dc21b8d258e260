// Command serverforge boots the desktop-resident control plane: the
// Instance Registry, Supervisor, Artifact Pipeline, Plugin/Mod Engine,
// Backup Engine, and Scheduler. It exposes no CLI flags and no networked
// control API (spec §6 "Exit codes and CLI flags are out of scope") — all
// configuration is environment-driven, and the process is meant to be
// launched and supervised by a desktop UI shell, not operated from a
// terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/serverforge/serverforge/infrastructure/cache"
	"github.com/serverforge/serverforge/infrastructure/config"
	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/artifacts"
	"github.com/serverforge/serverforge/internal/backup"
	"github.com/serverforge/serverforge/internal/downloader"
	"github.com/serverforge/serverforge/internal/plugins"
	"github.com/serverforge/serverforge/internal/registry"
	"github.com/serverforge/serverforge/internal/scheduler"
	"github.com/serverforge/serverforge/internal/supervisor"
)

func main() {
	ctx := context.Background()
	logger := logging.NewFromEnv("serverforge")

	dataDir := config.GetEnv("SERVERFORGE_DATA_DIR", defaultDataDir())
	if err := ensureLayout(dataDir); err != nil {
		logger.Fatal(ctx, "create data directory layout", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dataDir, "logs", "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Fatal(ctx, "open log file", err)
	}
	defer logFile.Close()
	logger.SetOutput(logFile)

	settings, err := config.LoadAppSettings(dataDir)
	if err != nil {
		logger.Fatal(ctx, "load app settings", err)
	}
	if err := config.SaveAppSettings(dataDir, settings); err != nil {
		logger.Fatal(ctx, "save app settings", err)
	}

	m := metrics.New("serverforge")
	timeouts := config.GetDefaultTimeouts()

	diskCache, err := cache.New(cache.Config{MaxEntries: 500, DiskDir: filepath.Join(dataDir, "cache")})
	if err != nil {
		logger.Fatal(ctx, "create cache", err)
	}

	maxDownloadRate := rate.Limit(0)
	if bps, ok := config.ParseEnvInt("SERVERFORGE_MAX_DOWNLOAD_BYTES_PER_SEC"); ok && bps > 0 {
		maxDownloadRate = rate.Limit(bps)
	}
	dl := downloader.New(downloader.Config{Timeout: timeouts.Download, RateBytes: maxDownloadRate})

	pipeline := artifacts.New(diskCache, dl, filepath.Join(dataDir, "java"), m)

	reg, err := registry.Open(filepath.Join(dataDir, "instances.sqlite"), logger)
	if err != nil {
		logger.Fatal(ctx, "open instance registry", err)
	}
	defer reg.Close()

	sup := supervisor.New(reg, pipeline, logger, m)
	defer sup.Shutdown()

	engines := plugins.New(diskCache, dl, config.GetEnv("SERVERFORGE_CURSEFORGE_API_KEY", ""))
	_ = engines // reachable via a future UI-facing API layer; wired here so it starts alongside everything else

	backups := backup.New(filepath.Join(dataDir, "backups"), logger, m)

	sched := scheduler.New(reg, supervisorAdapter{sup}, backups, logger, m)
	if err := sched.LoadFromRegistry(ctx); err != nil {
		logger.Fatal(ctx, "rebuild scheduler from registry", err)
	}

	schedulerCtx, cancelScheduler := context.WithCancel(ctx)
	go sched.Run(schedulerCtx)

	logger.WithContext(ctx).Info("serverforge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("shutting down")
	cancelScheduler()
	sched.Stop()
}

func defaultDataDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func ensureLayout(dataDir string) error {
	for _, sub := range []string{"logs", "cache", "java", "backups"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// supervisorAdapter satisfies scheduler.InstanceController against the
// Supervisor's get_or_create-then-act handle shape, since the Scheduler's
// own interface is expressed in terms of instance ids, not handles.
type supervisorAdapter struct {
	sup *supervisor.Supervisor
}

func (a supervisorAdapter) Start(ctx context.Context, instanceID uuid.UUID) error {
	h, err := a.sup.GetOrCreate(ctx, instanceID)
	if err != nil {
		return err
	}
	h.Start(ctx)
	return nil
}

func (a supervisorAdapter) Stop(ctx context.Context, instanceID uuid.UUID) error {
	h, err := a.sup.GetOrCreate(ctx, instanceID)
	if err != nil {
		return err
	}
	return h.Stop(ctx)
}

func (a supervisorAdapter) SendCommand(ctx context.Context, instanceID uuid.UUID, line string) error {
	h, err := a.sup.GetOrCreate(ctx, instanceID)
	if err != nil {
		return err
	}
	return h.SendCommand(line)
}
