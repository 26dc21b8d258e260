//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// treeKill sends SIGKILL to the child's process group, per spec §4.6.1
// ("elsewhere by signal"). The child must have been started with its own
// process group (see spawnChild) for the negative-pid signal to reach
// grandchildren as well as the direct child.
func treeKill(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
