// Command gitpatchd runs the peer-to-peer git-patch exchange reactor in
// the foreground, binding the control socket and the swarm transport
// described in a YAML configuration file (spec §6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/config"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/gplog"
	"github.com/gitpatchd/gitpatchd/internal/peerstore"
	"github.com/gitpatchd/gitpatchd/internal/reactor"
	"github.com/gitpatchd/gitpatchd/internal/swarmfront"
	flags "github.com/jessevdk/go-flags"
	manet "github.com/multiformats/go-multiaddr/net"
)

var log = gplog.Logger(gplog.SubsystemConfig)

type daemonOptions struct {
	ConfigFile string `short:"C" long:"configfile" description:"path to the daemon's YAML config file" default:"gitpatchd.yaml"`
	DebugLevel string `long:"debuglevel" description:"logging level for all subsystems (trace, debug, info, warn, error, critical)" default:"info"`
}

// gitpatchdMain is the true entry point; a nested function means deferred
// cleanups still run when the outer main calls os.Exit, the same
// double-wrapper lnd.go uses around lndMain.
func gitpatchdMain() error {
	var opts daemonOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return err
	}

	gplog.SetLevel(opts.DebugLevel)
	defer gplog.Flush()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	repo, err := gitrepo.OpenEager(cfg.RepoDir)
	if err != nil {
		return fmt.Errorf("opening git repository: %w", err)
	}

	store, err := peerstore.OpenBoltStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening peer store: %w", err)
	}

	swarm, err := swarmfront.NewP2PFront(cfg.Keypair)
	if err != nil {
		store.Close()
		return fmt.Errorf("starting swarm transport: %w", err)
	}

	api, err := newAPIFront(cfg.APIListen)
	if err != nil {
		swarm.Close()
		store.Close()
		return fmt.Errorf("starting control socket: %w", err)
	}

	svc, err := reactor.New(cfg, api, swarm, store, repo)
	if err != nil {
		api.Close()
		swarm.Close()
		store.Close()
		return fmt.Errorf("starting reactor: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("received interrupt, shutting down")
		svc.Interrupt()
	}()

	log.Infof("gitpatchd started, api_listen=%s swarm_listen=%s",
		cfg.APIListen, cfg.SwarmListen)

	runErr := svc.Run()
	if closeErr := svc.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}

// newAPIFront binds the api_listen address from the config: a literal
// unix socket path, or any other multiaddr resolved via manet.
func newAPIFront(addr config.APIListenAddr) (apifront.Front, error) {
	if addr.UnixPath != "" {
		if err := os.Remove(addr.UnixPath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		return apifront.ListenIPC("unix", addr.UnixPath)
	}

	l, err := manet.Listen(addr.Multiaddr)
	if err != nil {
		return nil, err
	}
	return apifront.ListenIPCFromListener(manet.NetListener(l)), nil
}

func main() {
	if err := gitpatchdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
