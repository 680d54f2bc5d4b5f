// Package daemon implements single-instance locking and optional
// background-daemonization, the way a long-running host service does
// it: an atomic lockfile (ported from lock.c) plus a jacobsa/daemonize
// re-exec for backgrounding, since Go has no safe equivalent of a raw
// fork() after the runtime has started goroutines/threads.
package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jacobsa/daemonize"
	"github.com/pkg/errors"
)

// InBackgroundEnv marks the re-exec'd child so it knows not to
// daemonize again and instead to report its own readiness via
// daemonize.SignalOutcome.
const InBackgroundEnv = "ETHERSRV_DAEMONIZED"

// DefaultLockPath is the default single-instance lockfile location.
const DefaultLockPath = "/var/run/ethersrv.lock"

// Lock atomically creates path, failing if another instance already
// holds it. Ports lock.c's lockme: O_CREAT|O_EXCL is what makes the
// check atomic across processes.
func Lock(path string) (*Lockfile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Errorf("lockfile %s already exists; another instance running?", path)
		}
		return nil, errors.Wrapf(err, "create lockfile %s", path)
	}
	f.Close()
	return &Lockfile{path: path}, nil
}

// Lockfile is a held single-instance lock.
type Lockfile struct {
	path string
}

// Release removes the lockfile. Ports lock.c's unlockme.
func (l *Lockfile) Release() {
	_ = os.Remove(l.path)
}

// InBackground reports whether the current process is the re-exec'd
// daemon child (InBackgroundEnv is set in its environment).
func InBackground() bool {
	return os.Getenv(InBackgroundEnv) == "true"
}

// Daemonize re-executes the current binary with the same arguments in
// the background, waits for the child to report its outcome via
// daemonize.SignalOutcome, and returns once the child is ready (or the
// error it reported). The parent process should exit after this
// returns nil.
func Daemonize(out io.Writer) error {
	self, err := exec.LookPath(os.Args[0])
	if err != nil {
		return errors.Wrap(err, "resolve own executable path")
	}
	env := append(os.Environ(), fmt.Sprintf("%s=true", InBackgroundEnv))
	if err := daemonize.Run(self, os.Args[1:], env, out); err != nil {
		return errors.Wrap(err, "daemonize.Run")
	}
	return nil
}

// SignalReady tells the waiting parent process that startup succeeded
// (or failed, if err is non-nil). Only the re-exec'd child calls this.
func SignalReady(err error) {
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		// The parent is gone or the signalling pipe is broken; there is
		// nothing left to report to, so this only goes to the daemon's
		// own log.
		fmt.Fprintf(os.Stderr, "daemonize.SignalOutcome: %v\n", sigErr)
	}
}
