package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/gitpatchd/gitpatchd/internal/config"
	"github.com/gitpatchd/gitpatchd/internal/gitrepo"
	"github.com/gitpatchd/gitpatchd/internal/peerid"
	"github.com/urfave/cli"
)

var initCommand = cli.Command{
	Name:      "init",
	Usage:     "write a new daemon config, generating a fresh keypair",
	ArgsUsage: "config repo db swarm-listen api-listen",
	Description: "Writes a new YAML config file with a freshly generated " +
		"Ed25519 keypair. Refuses to overwrite an existing file at " +
		"<config>.",
	Action: runInit,
}

func runInit(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 5 {
		return cli.NewExitError(
			"expected: init <config> <repo> <db> <swarm-listen> <api-listen>", 1)
	}
	configPath, repoDir, dbPath, swarmListen, apiListen := args[0], args[1], args[2], args[3], args[4]

	cfg, err := config.New(repoDir, dbPath, swarmListen, apiListen)
	if err != nil {
		return err
	}
	if err := config.WriteNew(configPath, cfg); err != nil {
		return err
	}

	id, err := peerid.FromPublicKey(cfg.Keypair.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (peer id %s)\n", configPath, id)
	return nil
}

var idCommand = cli.Command{
	Name:      "id",
	Usage:     "resolve a nickname, or print the daemon's own PeerId",
	ArgsUsage: "[nickname]",
	Action:    runID,
}

func runID(ctx *cli.Context) error {
	client, cleanUp := dial(ctx)
	defer cleanUp()

	var nickname *string
	if ctx.NArg() > 0 {
		n := ctx.Args().First()
		nickname = &n
	}

	resp, err := client.GetID(nickname)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	fmt.Println(resp.Peer)
	return nil
}

var addPeerCommand = cli.Command{
	Name:      "addpeer",
	Usage:     "register a peer under a nickname",
	ArgsUsage: "peer-id nickname",
	Action:    runAddPeer,
}

func runAddPeer(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.NewExitError("expected: addpeer <peer-id> <nickname>", 1)
	}

	peer, err := peerid.Parse(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	nickname := ctx.Args().Get(1)

	client, cleanUp := dial(ctx)
	defer cleanUp()

	resp, err := client.AddPeer(peer, nickname)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	fmt.Println("ok")
	return nil
}

var syncCommand = cli.Command{
	Name:      "sync",
	Usage:     "initiate an ancestor-chain sync with a peer",
	ArgsUsage: "peer-id",
	Action:    runSync,
}

func runSync(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("expected: sync <peer-id>", 1)
	}

	peer, err := peerid.Parse(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	client, cleanUp := dial(ctx)
	defer cleanUp()

	resp, err := client.Update(peer)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	fmt.Println("ok")
	return nil
}

var patchCommand = cli.Command{
	Name:      "patch",
	Usage:     "request a patch from a peer at a given commit",
	ArgsUsage: "peer-id commit-hex",
	Action:    runPatch,
}

func runPatch(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.NewExitError("expected: patch <peer-id> <commit-hex>", 1)
	}

	peer, err := peerid.Parse(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	raw, err := hex.DecodeString(ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("parsing commit: %w", err)
	}
	var commit gitrepo.Commit
	copy(commit[:], raw)

	client, cleanUp := dial(ctx)
	defer cleanUp()

	resp, err := client.Patch(peer, commit)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}
	fmt.Println("ok")
	return nil
}

var shutdownCommand = cli.Command{
	Name:   "shutdown",
	Usage:  "stop the running daemon",
	Action: runShutdown,
}

func runShutdown(ctx *cli.Context) error {
	client, cleanUp := dial(ctx)
	defer cleanUp()

	if _, err := client.Shutdown(); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}
