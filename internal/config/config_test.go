package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAPIListenUnixScheme(t *testing.T) {
	addr, err := ParseAPIListen("/unix//var/run/gitpatchd.sock")
	require.NoError(t, err)
	require.Equal(t, "/var/run/gitpatchd.sock", addr.UnixPath)
}

func TestParseAPIListenEmptyUnixPath(t *testing.T) {
	_, err := ParseAPIListen("/unix/")
	require.Error(t, err)

	_, err = ParseAPIListen("/unix")
	require.Error(t, err)
}

func TestParseAPIListenStandardMultiaddr(t *testing.T) {
	addr, err := ParseAPIListen("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)
	require.Empty(t, addr.UnixPath)
	require.NotNil(t, addr.Multiaddr)
}

func TestParseAPIListenGarbage(t *testing.T) {
	_, err := ParseAPIListen("not-an-address")
	require.Error(t, err)
}

func TestNewWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	c, err := New(
		filepath.Join(dir, "repo"),
		filepath.Join(dir, "peers.db"),
		"/ip4/0.0.0.0/udp/4001/quic",
		"/unix/"+filepath.Join(dir, "api.sock"),
	)
	require.NoError(t, err)

	require.NoError(t, WriteNew(cfgPath, c))

	// Refuses to overwrite.
	err = WriteNew(cfgPath, c)
	require.Error(t, err)

	loaded, err := Load(cfgPath)
	require.NoError(t, err)

	require.Equal(t, c.Keypair, loaded.Keypair)
	require.Equal(t, c.RepoDir, loaded.RepoDir)
	require.Equal(t, c.DatabasePath, loaded.DatabasePath)
	require.Equal(t, c.SwarmListen.String(), loaded.SwarmListen.String())
	require.Equal(t, c.APIListen.UnixPath, loaded.APIListen.UnixPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLoadBadKeypair(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "keypair: \"not-valid-multibase\"\n" +
		"repo_dir: /tmp/repo\n" +
		"database_path: /tmp/db\n" +
		"swarm_listen: /ip4/0.0.0.0/udp/4001/quic\n" +
		"api_listen: /unix//tmp/api.sock\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	_, err := Load(path)
	require.Error(t, err)
}
