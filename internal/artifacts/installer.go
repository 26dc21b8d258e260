package artifacts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// runInstaller spawns cmd, streaming every stdout line to onLog verbatim and
// every stderr line prefixed "ERROR: ", then waits for exit. A non-zero exit
// becomes an InstallerFailure. Grounded directly on the original
// ServerManager::run_installer_command: pipe both streams, forward each
// line as it arrives rather than buffering to completion, so the owning
// instance's log view shows installer progress live.
func runInstaller(ctx context.Context, loaderName string, cmd *exec.Cmd, onLog LogFunc) error {
	if onLog != nil {
		onLog(fmt.Sprintf("Running %s installer...", loaderName))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstallerFailure, "attach installer stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstallerFailure, "attach installer stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(errors.ErrCodeInstallerFailure, fmt.Sprintf("start %s installer", loaderName), err)
	}

	done := make(chan struct{}, 2)
	pump := func(r io.Reader, prefix string) {
		defer func() { done <- struct{}{} }()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLog != nil {
				onLog(prefix + scanner.Text())
			}
		}
	}
	go pump(stdout, "")
	go pump(stderr, "ERROR: ")
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return errors.InstallerFailure(loaderName, exitCode, err)
	}
	return nil
}
