package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/pubsub"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/domain"
)

const stopPollInterval = 250 * time.Millisecond

// ServerHandle is the Supervisor's per-instance state: owned config, owned
// child-process slot, owned stdin slot, status, resource snapshot,
// online-player set, log broadcast, progress broadcast, start-time instant
// (spec §3 "ServerHandle"). Every field group has its own lock; no
// suspension point is ever reached while holding one (spec §5).
type ServerHandle struct {
	instanceID uuid.UUID
	registry   InstanceSource
	artifacts  ArtifactEnsurer
	logger     *logging.Logger
	metrics    *metrics.Metrics

	configMu sync.RWMutex
	config   Config

	statusMu sync.Mutex
	status   domain.Status

	childMu sync.Mutex
	cmd     *exec.Cmd

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	usageMu sync.RWMutex
	usage   domain.ResourceUsage

	playersMu sync.RWMutex
	players   map[string]struct{}

	startTimeMu sync.RWMutex
	startTime   time.Time

	logBus           *pubsub.Publisher
	progressBus      *pubsub.Publisher
	progressThrottle downloadProgressThrottle

	wg sync.WaitGroup
}

func newServerHandle(id uuid.UUID, cfg Config, registry InstanceSource, artifacts ArtifactEnsurer, logger *logging.Logger, m *metrics.Metrics) *ServerHandle {
	return &ServerHandle{
		instanceID:  id,
		registry:    registry,
		artifacts:   artifacts,
		logger:      logger,
		metrics:     m,
		config:      cfg,
		status:      domain.StatusStopped,
		players:     make(map[string]struct{}),
		logBus:      pubsub.NewPublisher(100*time.Millisecond, 256),
		progressBus: pubsub.NewPublisher(100*time.Millisecond, 64),
	}
}

// Status returns the handle's current lifecycle state.
func (h *ServerHandle) Status() domain.Status {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	return h.status
}

func (h *ServerHandle) setStatus(s domain.Status) {
	h.statusMu.Lock()
	h.status = s
	h.statusMu.Unlock()
}

func (h *ServerHandle) compareAndSetStatus(expectAnyOf []domain.Status, to domain.Status) bool {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	for _, want := range expectAnyOf {
		if h.status == want {
			h.status = to
			return true
		}
	}
	return false
}

// UpdateConfig swaps the stored config; it takes effect on the next start
// (spec §4.6.2).
func (h *ServerHandle) UpdateConfig(cfg Config) {
	h.configMu.Lock()
	h.config = cfg
	h.configMu.Unlock()
}

func (h *ServerHandle) getConfig() Config {
	h.configMu.RLock()
	defer h.configMu.RUnlock()
	return h.config
}

// Usage returns the latest resource sample.
func (h *ServerHandle) Usage() domain.ResourceUsage {
	h.usageMu.RLock()
	defer h.usageMu.RUnlock()
	return h.usage
}

// SubscribeLogs returns a channel of LogEvent. Late subscribers miss
// earlier messages (spec §4.6.2).
func (h *ServerHandle) SubscribeLogs() <-chan LogEvent {
	return adaptLogChannel(h.logBus.Subscribe())
}

// SubscribeProgress returns a channel of ProgressEvent.
func (h *ServerHandle) SubscribeProgress() <-chan ProgressEvent {
	return adaptProgressChannel(h.progressBus.Subscribe())
}

func adaptLogChannel(raw chan interface{}) <-chan LogEvent {
	out := make(chan LogEvent, cap(raw))
	go func() {
		defer close(out)
		for v := range raw {
			if ev, ok := v.(LogEvent); ok {
				out <- ev
			}
		}
	}()
	return out
}

func adaptProgressChannel(raw chan interface{}) <-chan ProgressEvent {
	out := make(chan ProgressEvent, cap(raw))
	go func() {
		defer close(out)
		for v := range raw {
			if ev, ok := v.(ProgressEvent); ok {
				out <- ev
			}
		}
	}()
	return out
}

// Start is a no-op if the handle is already Starting/Running; otherwise it
// spawns the lifecycle loop in the background and returns immediately
// (spec §4.6.2).
func (h *ServerHandle) Start(ctx context.Context) {
	if !h.compareAndSetStatus([]domain.Status{domain.StatusStopped, domain.StatusCrashed}, domain.StatusStarting) {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runLifecycle(context.Background())
	}()
}

func (h *ServerHandle) runLifecycle(ctx context.Context) {
	inst, err := h.registry.GetByID(ctx, h.instanceID)
	if err != nil {
		h.logger.WithError(err).Warn("supervisor: failed to reload instance before start")
		h.setStatus(domain.StatusCrashed)
		return
	}

	if h.artifacts != nil {
		h.setStatus(domain.StatusInstalling)
		err := h.artifacts.EnsureArtifacts(ctx, inst, func(cur, total int64, msg string) {
			h.handleDownloadProgress(cur, total, msg)
		}, func(line string) {
			h.logBus.Publish(LogEvent{InstanceID: h.instanceID.String(), Line: line})
		})
		if err != nil {
			h.logger.WithError(err).Warn("supervisor: artifact installation failed")
			h.setStatus(domain.StatusCrashed)
			return
		}
		h.setStatus(domain.StatusStarting)
	}

	cfg := h.getConfig()
	cmd, stdin, stdout, stderr, err := spawnChild(cfg)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordChildSpawnError()
		}
		h.logger.WithError(err).Warn("supervisor: failed to spawn child process")
		h.setStatus(domain.StatusCrashed)
		return
	}

	h.childMu.Lock()
	h.cmd = cmd
	h.childMu.Unlock()

	h.stdinMu.Lock()
	h.stdin = stdin
	h.stdinMu.Unlock()

	startedAt := time.Now()
	h.startTimeMu.Lock()
	h.startTime = startedAt
	h.startTimeMu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordInstanceStart(string(domain.StatusStarting))
	}

	sampleCtx, cancelSample := context.WithCancel(context.Background())
	defer cancelSample()
	go h.runSampler(sampleCtx, int32(cmd.Process.Pid), startedAt)

	var streamWG sync.WaitGroup
	streamWG.Add(2)
	go func() {
		defer streamWG.Done()
		h.pumpStdout(stdout)
	}()
	go func() {
		defer streamWG.Done()
		h.pumpStderr(stderr)
	}()

	_ = h.registry.UpdateLastRun(ctx, h.instanceID)

	waitErr := cmd.Wait()
	streamWG.Wait()
	cancelSample()

	h.stdinMu.Lock()
	h.stdin = nil
	h.stdinMu.Unlock()

	wasStopping := h.compareAndSetStatus([]domain.Status{domain.StatusStopping}, domain.StatusStopped)
	if !wasStopping {
		if waitErr != nil {
			h.setStatus(domain.StatusCrashed)
			if h.metrics != nil {
				h.metrics.RecordInstanceCrash(h.instanceID.String())
			}
		} else {
			h.setStatus(domain.StatusStopped)
		}
	}
	if h.metrics != nil {
		h.metrics.RecordInstanceStop(string(h.Status()))
	}
}

func (h *ServerHandle) pumpStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		_, kind, username := parseLine(raw)

		switch kind {
		case lineKindReady:
			h.compareAndSetStatus([]domain.Status{domain.StatusStarting}, domain.StatusRunning)
		case lineKindJoin:
			h.compareAndSetStatus([]domain.Status{domain.StatusStarting}, domain.StatusRunning)
			if username != "" {
				h.playersMu.Lock()
				h.players[username] = struct{}{}
				h.playersMu.Unlock()
			}
		case lineKindLeave:
			if username != "" {
				h.playersMu.Lock()
				delete(h.players, username)
				h.playersMu.Unlock()
			}
		}

		h.logBus.Publish(LogEvent{InstanceID: h.instanceID.String(), Line: raw})
	}
}

func (h *ServerHandle) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.logBus.Publish(LogEvent{InstanceID: h.instanceID.String(), Line: "ERROR: " + scanner.Text()})
	}
}

// Stop writes the configured stop command to stdin, waits up to
// StopTimeoutSec for the child to exit, and tree-kills it otherwise
// (spec §4.6.2).
func (h *ServerHandle) Stop(ctx context.Context) error {
	cfg := h.getConfig()
	if err := h.SendCommand(cfg.StopCommand); err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(cfg.StopTimeoutSec) * time.Second)
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if h.Status() == domain.StatusStopped {
			h.clearAfterStop()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if h.Status() != domain.StatusStopped {
		if err := h.Kill(); err != nil {
			return errors.StopTimeout(h.instanceID.String(), cfg.StopTimeoutSec)
		}
	}
	h.clearAfterStop()
	return nil
}

func (h *ServerHandle) clearAfterStop() {
	h.stdinMu.Lock()
	h.stdin = nil
	h.stdinMu.Unlock()

	h.playersMu.Lock()
	h.players = make(map[string]struct{})
	h.playersMu.Unlock()

	h.setStatus(domain.StatusStopped)
}

// Kill immediately tree-kills the child and clears state.
func (h *ServerHandle) Kill() error {
	h.childMu.Lock()
	cmd := h.cmd
	h.childMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return treeKill(cmd)
}

// SendCommand writes line\n to the child's stdin. If line matches the
// effective stop command, it eagerly transitions Running→Stopping
// regardless of whether the write succeeds (spec §4.6.2, REDESIGN note).
func (h *ServerHandle) SendCommand(line string) error {
	cfg := h.getConfig()
	if strings.TrimSpace(line) == strings.TrimSpace(cfg.StopCommand) {
		h.compareAndSetStatus([]domain.Status{domain.StatusRunning}, domain.StatusStopping)
	}

	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	if h.stdin == nil {
		return errors.ChildSpawn(h.instanceID.String(), fmt.Errorf("no running child to receive command"))
	}
	_, err := io.WriteString(h.stdin, line+"\n")
	if err != nil {
		return errors.ChildSpawn(h.instanceID.String(), err)
	}
	return nil
}

func spawnChild(cfg Config) (cmd *exec.Cmd, stdin io.WriteCloser, stdout, stderr io.Reader, err error) {
	if len(cfg.LaunchCommand) == 0 {
		return nil, nil, nil, nil, errors.ChildSpawn(cfg.InstanceID, fmt.Errorf("empty launch command"))
	}

	cmd = exec.Command(cfg.LaunchCommand[0], cfg.LaunchCommand[1:]...)
	cmd.Dir = cfg.WorkDir
	setProcessGroup(cmd)

	stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, errors.ChildSpawn(cfg.InstanceID, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, errors.ChildSpawn(cfg.InstanceID, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, nil, errors.ChildSpawn(cfg.InstanceID, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, errors.ChildSpawn(cfg.InstanceID, err)
	}
	return cmd, stdin, stdoutPipe, stderrPipe, nil
}
