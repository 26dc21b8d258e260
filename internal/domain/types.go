// Package domain holds the data types shared by every subsystem: the
// registry, the supervisor, the artifact pipeline, the scheduler and the
// backup engine all speak in terms of these structs rather than owning
// private copies of them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the Supervisor's lifecycle state for a single instance.
type Status string

const (
	StatusStopped    Status = "stopped"
	StatusStarting   Status = "starting"
	StatusInstalling Status = "installing"
	StatusRunning    Status = "running"
	StatusStopping   Status = "stopping"
	StatusCrashed    Status = "crashed"
)

// LaunchMethod selects how the supervisor invokes the child process.
type LaunchMethod string

const (
	LaunchStartupLine LaunchMethod = "startup_line"
	LaunchBatFile     LaunchMethod = "bat_file"
)

// CrashPolicy controls what the supervisor does after an unexpected exit.
type CrashPolicy string

const (
	CrashNothing   CrashPolicy = "nothing"
	CrashElevated  CrashPolicy = "elevated"
	CrashAggressive CrashPolicy = "aggressive"
)

// RAMUnit is the suffix accepted in InstanceSettings.RAMUnit and in Java's
// -Xmx/-Xms flags.
type RAMUnit string

const (
	RAMUnitG RAMUnit = "G"
	RAMUnitM RAMUnit = "M"
)

// InstanceSettings is the mutable, user-editable configuration block of an
// instance. It is persisted as an opaque JSON blob inside the registry row.
type InstanceSettings struct {
	RAMAmount      int          `json:"ram_amount"`
	RAMUnit        RAMUnit      `json:"ram_unit"`
	MinRAMAmount   int          `json:"min_ram_amount,omitempty"`
	MinRAMUnit     RAMUnit      `json:"min_ram_unit,omitempty"`
	Port           int          `json:"port"`
	Autostart      bool         `json:"autostart"`
	RuntimePath    string       `json:"runtime_path,omitempty"`
	LaunchMethod   LaunchMethod `json:"launch_method"`
	StartupLine    string       `json:"startup_line,omitempty"`
	ScriptFile     string       `json:"script_file,omitempty"`
	CrashPolicy    CrashPolicy  `json:"crash_policy"`
	IconPath       string       `json:"icon_path,omitempty"`
	StopTimeoutSec int          `json:"stop_timeout_sec,omitempty"`
}

// DefaultInstanceSettings returns the settings a freshly created instance
// starts with.
func DefaultInstanceSettings() InstanceSettings {
	return InstanceSettings{
		RAMAmount:      2,
		RAMUnit:        RAMUnitG,
		Port:           25565,
		Autostart:      false,
		LaunchMethod:   LaunchStartupLine,
		StartupLine:    "java -Xmx{ram}{unit} -Xms{ram}{unit} -jar server.jar nogui",
		CrashPolicy:    CrashNothing,
		StopTimeoutSec: 60,
	}
}

// TaskKind enumerates the actions a ScheduledTask can dispatch.
type TaskKind string

const (
	TaskBackup  TaskKind = "backup"
	TaskRestart TaskKind = "restart"
	TaskStop    TaskKind = "stop"
	TaskStart   TaskKind = "start"
	TaskCommand TaskKind = "command"
)

// ScheduledTask is a single cron-driven action attached to an instance.
type ScheduledTask struct {
	ID         uuid.UUID  `json:"id"`
	InstanceID uuid.UUID  `json:"instance_id"`
	Kind       TaskKind   `json:"kind"`
	Command    string     `json:"command,omitempty"` // only set when Kind == TaskCommand
	Cron       string     `json:"cron"`
	LastRun    *time.Time `json:"last_run,omitempty"`
}

// RuntimeState is rehydrated from the instance's own server.properties on
// every registry read; it is never persisted.
type RuntimeState struct {
	Status     Status `json:"status"`
	IP         string `json:"ip,omitempty"`
	Port       int    `json:"port,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
	MOTD       string `json:"motd,omitempty"`
}

// Instance is a single isolated server installation.
type Instance struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	ModLoader     string          `json:"mod_loader,omitempty"`
	LoaderVersion string          `json:"loader_version,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	LastRun       *time.Time      `json:"last_run,omitempty"`
	Path          string          `json:"path"`
	Settings      InstanceSettings `json:"settings"`
	Schedules     []ScheduledTask `json:"schedules"`
	Runtime       RuntimeState    `json:"runtime"`
}

// HashAlgorithm names the digest used to verify a downloaded artifact.
type HashAlgorithm string

const (
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
)

// ExpectedHash pairs a hex digest with the algorithm that produced it.
type ExpectedHash struct {
	Hex       string
	Algorithm HashAlgorithm
}

// ArtifactDescriptor names a single file to be materialized on disk.
type ArtifactDescriptor struct {
	URL          string
	TargetPath   string
	ExpectedHash *ExpectedHash
	TotalSize    int64
}

// BackupInfo describes one archived backup on disk.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceUsage is the Supervisor's periodic sample of a running child.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryBytes   uint64  `json:"memory_bytes"`
	DiskReadBytes uint64  `json:"disk_read_bytes,omitempty"`
	DiskWriteBytes uint64 `json:"disk_write_bytes,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	PlayersOnline int     `json:"players_online"`
}

// PluginRecord / ModRecord describe one archive (plugin or mod) discovered
// on disk. Filename is ground truth for the enabled/disabled state.
type PluginRecord struct {
	Filename    string      `json:"filename"`
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Author      string      `json:"author,omitempty"`
	Description string      `json:"description,omitempty"`
	Loader      string      `json:"loader,omitempty"`
	IconBase64  string      `json:"icon_base64,omitempty"`
	Enabled     bool        `json:"enabled"`
	Provenance  *Provenance `json:"provenance,omitempty"`
}

// Provenance records where an installed plugin/mod came from, so update
// checks know which provider and version id to re-query.
type Provenance struct {
	ProjectID        string `json:"project_id"`
	Provider         string `json:"provider"`
	CurrentVersionID string `json:"current_version_id"`
}

// UpdateDescriptor is emitted by the update-check operation when a newer
// version is available for an installed plugin/mod.
type UpdateDescriptor struct {
	Filename         string `json:"filename"`
	CurrentVersionID string `json:"current_version_id"`
	LatestVersionID  string `json:"latest_version_id"`
}
