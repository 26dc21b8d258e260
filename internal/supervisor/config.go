package supervisor

import (
	"strconv"
	"strings"

	"github.com/serverforge/serverforge/internal/domain"
)

// Config is the Supervisor's resolved, concrete launch configuration for one
// instance, composed once from the instance's settings and mod loader
// (spec §4.6.2 "get_or_create"). It is immutable; UpdateConfig replaces the
// whole value.
type Config struct {
	InstanceID     string
	WorkDir        string
	LaunchCommand  []string
	StopCommand    string
	StopTimeoutSec int
	CrashPolicy    domain.CrashPolicy
}

const defaultStopTimeoutSec = 60

// ComposeConfig resolves an instance's settings into a concrete Config.
// BungeeCord proxies are stopped with the literal command "end"; every
// other loader uses "stop" (spec §4.6.2, example test §4.6's "Bungee stop
// command" case).
func ComposeConfig(inst domain.Instance) Config {
	stopCmd := "stop"
	if strings.EqualFold(inst.ModLoader, "bungeecord") {
		stopCmd = "end"
	}

	timeout := inst.Settings.StopTimeoutSec
	if timeout <= 0 {
		timeout = defaultStopTimeoutSec
	}

	return Config{
		InstanceID:     inst.ID.String(),
		WorkDir:        inst.Path,
		LaunchCommand:  resolveLaunchCommand(inst),
		StopCommand:    stopCmd,
		StopTimeoutSec: timeout,
		CrashPolicy:    inst.Settings.CrashPolicy,
	}
}

// resolveLaunchCommand substitutes {ram}/{unit}/{min_ram}/{min_unit}/
// {max_ram}/{max_unit} into the instance's startup line (spec §6) and
// splits it into argv, or resolves to the configured batch/shell script.
func resolveLaunchCommand(inst domain.Instance) []string {
	s := inst.Settings

	if s.LaunchMethod == domain.LaunchBatFile && s.ScriptFile != "" {
		return []string{s.ScriptFile}
	}

	line := s.StartupLine
	ram := strconv.Itoa(s.RAMAmount)
	unit := string(s.RAMUnit)

	minAmount, minUnit := s.MinRAMAmount, s.MinRAMUnit
	if minAmount == 0 {
		minAmount = s.RAMAmount
	}
	if minUnit == "" {
		minUnit = s.RAMUnit
	}

	replacer := strings.NewReplacer(
		"{ram}", ram,
		"{unit}", unit,
		"{max_ram}", ram,
		"{max_unit}", unit,
		"{min_ram}", strconv.Itoa(minAmount),
		"{min_unit}", string(minUnit),
	)
	line = replacer.Replace(line)
	return strings.Fields(line)
}
