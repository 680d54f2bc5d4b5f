// Command ethersrv is the EtherDFS link-layer file server (spec.md §6's
// CLI surface): it binds a raw-Ethernet link driver to an interface,
// maps up to 24 host directories to DOS drive letters starting at C:,
// and serves FAT-centric file requests until terminated.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/megapearl/etherdfs/internal/daemon"
	"github.com/megapearl/etherdfs/internal/dispatch"
	"github.com/megapearl/etherdfs/internal/dosfs"
	"github.com/megapearl/etherdfs/internal/elog"
	"github.com/megapearl/etherdfs/internal/handledb"
	"github.com/megapearl/etherdfs/internal/linkdriver"
	"github.com/megapearl/etherdfs/internal/protocol"
	"github.com/megapearl/etherdfs/internal/server"
)

// maxRootPaths is spec.md §6's "up to 24 root paths" bound: 26 drive
// letters minus the two reserved for A:/B:.
const maxRootPaths = protocol.MaxDrives - protocol.FirstDriveIndex

var (
	foreground bool
	verbose    bool
	lockPath   string
)

func main() {
	root := &cobra.Command{
		Use:          "ethersrv [-f] [-v] <iface> <rootPath1> [<rootPath2> ...]",
		Short:        "Serve host directories over a raw-Ethernet EtherDFS link",
		Args:         cobra.RangeArgs(2, 1+maxRootPaths),
		SilenceUsage: true,
		RunE:         run,
	}
	flags := root.Flags()
	flags.BoolVarP(&foreground, "foreground", "f", false, "stay in the foreground instead of daemonizing")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to stderr")
	flags.StringVar(&lockPath, "lockfile", daemon.DefaultLockPath, "single-instance lockfile path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	elog.SetDebug(verbose)

	iface := args[0]
	rootPaths := args[1:]

	drives, err := buildDriveTable(rootPaths)
	if err != nil {
		return err
	}

	if !foreground && !daemon.InBackground() {
		if err := daemon.Daemonize(os.Stdout); err != nil {
			return err
		}
		return nil
	}

	lock, err := daemon.Lock(lockPath)
	if err != nil {
		if daemon.InBackground() {
			daemon.SignalReady(err)
		}
		return err
	}
	defer lock.Release()

	elog.Infof("ethersrv starting on interface %s, %d drive(s) mapped", iface, len(rootPaths))

	link, err := linkdriver.Open(iface)
	if err != nil {
		if daemon.InBackground() {
			daemon.SignalReady(err)
		}
		return err
	}
	defer link.Close()

	mac := link.LocalMAC()
	elog.Infof("bound to %s, local MAC %02x:%02x:%02x:%02x:%02x:%02x", iface,
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])

	disp := dispatch.New(drives, handledb.New())
	srv := server.New(link, disp)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		elog.Infof("received %s, shutting down", sig)
		srv.Stop()
	}()

	if daemon.InBackground() {
		daemon.SignalReady(nil)
	}

	return srv.Run()
}

// buildDriveTable maps each root path to a drive letter starting at
// C:, logging one info line per drive; for a root that is not on a
// FAT-family filesystem that line notes its attribute bits are faked
// (spec.md §4.6).
func buildDriveTable(rootPaths []string) (*protocol.DriveTable, error) {
	var drives protocol.DriveTable
	for i, raw := range rootPaths {
		abs, err := resolveRoot(raw)
		if err != nil {
			return nil, err
		}
		idx := protocol.FirstDriveIndex + i
		isFAT := dosfs.IsFAT(abs)
		drives[idx] = &protocol.Drive{Root: abs, IsFAT: isFAT}

		letter := 'A' + byte(idx)
		if isFAT {
			elog.Infof("%c: -> %s (FAT attributes available)", letter, abs)
		} else {
			elog.Infof("%c: -> %s (not a FAT filesystem; attribute bits are faked)", letter, abs)
		}
	}
	return &drives, nil
}

func resolveRoot(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("root path %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root path %q is not a directory", path)
	}
	abs, err := absPath(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func absPath(path string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if len(path) > 0 && path[0] == '/' {
		return path, nil
	}
	return wd + "/" + path, nil
}
