// Package hooks runs the user-configured OnSongChange/OnStop shell
// commands in response to playback transitions, the way external tools
// are invoked elsewhere in this codebase: os/exec, not a library, since
// the job is literally "run what the user configured".
package hooks

import (
	"log/slog"
	"os/exec"
)

// Runner fires shell commands asynchronously and reaps them without
// blocking the caller. Its zero value is ready to use.
type Runner struct{}

// RunSongChange executes cmdline (if non-empty) with FLUXD_FILE set to
// file in its environment, once a new track starts playing.
func (r Runner) RunSongChange(cmdline, file string) {
	r.run(cmdline, "FLUXD_FILE="+file)
}

// RunStop executes cmdline (if non-empty) once playback stops.
func (r Runner) RunStop(cmdline string) {
	r.run(cmdline)
}

func (r Runner) run(cmdline string, extraEnv ...string) {
	if cmdline == "" {
		return
	}
	go func() {
		cmd := exec.Command("/bin/sh", "-c", cmdline)
		if len(extraEnv) > 0 {
			cmd.Env = append(cmd.Environ(), extraEnv...)
		}
		if err := cmd.Start(); err != nil {
			slog.Error("hook: failed to start", "cmd", cmdline, "err", err)
			return
		}
		// Wait reaps the child itself; nothing else needs to watch for it.
		if err := cmd.Wait(); err != nil {
			slog.Warn("hook: command exited with error", "cmd", cmdline, "err", err)
		}
	}()
}
