//go:build windows

package supervisor

import (
	"os/exec"
	"strconv"
)

// treeKill invokes taskkill's tree-kill flags on the child's pid, per spec
// §4.6.1 ("on Windows, by invoking the OS process tree-kill utility").
func treeKill(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	if err := kill.Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func setProcessGroup(cmd *exec.Cmd) {
	// No process-group equivalent needed: taskkill /T walks the tree itself.
}
