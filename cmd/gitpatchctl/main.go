// Command gitpatchctl is the control-plane client for gitpatchd: it
// dials a running daemon's api_listen socket and issues one ApiRequest
// per invocation, in the same shape as lncli drives lnd's RPC surface.
package main

import (
	"fmt"
	"os"

	"github.com/gitpatchd/gitpatchd/internal/apifront"
	"github.com/gitpatchd/gitpatchd/internal/config"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[gitpatchctl] %v\n", err)
	os.Exit(1)
}

// dial resolves the daemon's control socket from its config file and
// connects to it.
func dial(ctx *cli.Context) (*apifront.IPCClient, func()) {
	cfg, err := config.Load(ctx.GlobalString("configfile"))
	if err != nil {
		fatal(fmt.Errorf("loading config: %w", err))
	}

	if cfg.APIListen.UnixPath != "" {
		client, err := apifront.DialIPC("unix", cfg.APIListen.UnixPath)
		if err != nil {
			fatal(fmt.Errorf("dialing %s: %w", cfg.APIListen, err))
		}
		return client, func() { client.Close() }
	}

	conn, err := manet.Dial(cfg.APIListen.Multiaddr)
	if err != nil {
		fatal(fmt.Errorf("dialing %s: %w", cfg.APIListen, err))
	}
	client := apifront.NewIPCClient(conn)
	return client, func() { client.Close() }
}

func main() {
	app := cli.NewApp()
	app.Name = "gitpatchctl"
	app.Usage = "control plane for your gitpatchd daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile",
			Value: "gitpatchd.yaml",
			Usage: "path to the daemon's config file",
		},
	}
	app.Commands = []cli.Command{
		initCommand,
		idCommand,
		addPeerCommand,
		syncCommand,
		patchCommand,
		shutdownCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
