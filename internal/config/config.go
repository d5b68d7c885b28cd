// Package config loads and persists the daemon's YAML configuration file
// (spec §6), in the same load-then-validate shape the teacher uses for its
// own flags-based config, but serialized as YAML since the spec mandates a
// single YAML document.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multibase"
	"gopkg.in/yaml.v3"
)

// Config is the parsed, validated, in-memory form of the config file.
// Unlike configSerde, the keypair field is a usable Ed25519 private key and
// the listen addresses are parsed multiaddrs (or, for ApiListen, the
// /unix/<path> pseudo-scheme).
type Config struct {
	Keypair      ed25519.PrivateKey
	RepoDir      string
	DatabasePath string
	SwarmListen  multiaddr.Multiaddr
	APIListen    APIListenAddr
}

// APIListenAddr is either a standard multiaddr or a unix domain socket
// path, per spec §6's /unix/<path> pseudo-scheme.
type APIListenAddr struct {
	// UnixPath is set (and Multiaddr is nil) when the config used the
	// /unix/<path> pseudo-scheme.
	UnixPath string
	Multiaddr multiaddr.Multiaddr
}

func (a APIListenAddr) String() string {
	if a.UnixPath != "" {
		return "/unix/" + a.UnixPath
	}
	return a.Multiaddr.String()
}

// configSerde is the literal YAML document shape.
type configSerde struct {
	Keypair      string `yaml:"keypair"`
	RepoDir      string `yaml:"repo_dir"`
	DatabasePath string `yaml:"database_path"`
	SwarmListen  string `yaml:"swarm_listen"`
	APIListen    string `yaml:"api_listen"`
}

// ParseError is a ConfigError (spec §7): bad path, unparseable
// multi-address, or bad keypair encoding. Always fatal at startup.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Field: "path", Err: err}
	}

	var serde configSerde
	if err := yaml.Unmarshal(raw, &serde); err != nil {
		return nil, &ParseError{Field: "yaml", Err: err}
	}
	return fromSerde(serde)
}

func fromSerde(serde configSerde) (*Config, error) {
	_, keyBytes, err := multibase.Decode(serde.Keypair)
	if err != nil {
		return nil, &ParseError{Field: "keypair", Err: err}
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, &ParseError{Field: "keypair", Err: fmt.Errorf(
			"expected %d bytes, got %d", ed25519.PrivateKeySize, len(keyBytes))}
	}

	if serde.RepoDir == "" {
		return nil, &ParseError{Field: "repo_dir", Err: fmt.Errorf("empty path")}
	}
	if serde.DatabasePath == "" {
		return nil, &ParseError{Field: "database_path", Err: fmt.Errorf("empty path")}
	}

	swarmAddr, err := multiaddr.NewMultiaddr(serde.SwarmListen)
	if err != nil {
		return nil, &ParseError{Field: "swarm_listen", Err: err}
	}

	apiListen, err := ParseAPIListen(serde.APIListen)
	if err != nil {
		return nil, &ParseError{Field: "api_listen", Err: err}
	}

	return &Config{
		Keypair:      ed25519.PrivateKey(keyBytes),
		RepoDir:      serde.RepoDir,
		DatabasePath: serde.DatabasePath,
		SwarmListen:  swarmAddr,
		APIListen:    apiListen,
	}, nil
}

// ParseAPIListen parses either a standard multiaddr or the /unix/<path>
// pseudo-scheme: split the input at the second '/'; the suffix is the
// socket path. An empty path, or a leading scheme that is neither a
// standard multiaddr nor /unix/, is rejected.
func ParseAPIListen(s string) (APIListenAddr, error) {
	const unixPrefix = "/unix/"
	if strings.HasPrefix(s, unixPrefix) {
		path := s[len(unixPrefix):] // the absolute path after "/unix/"
		if path == "/" || path == "" {
			return APIListenAddr{}, fmt.Errorf("empty unix socket path")
		}
		return APIListenAddr{UnixPath: path}, nil
	}
	if s == "/unix" {
		return APIListenAddr{}, fmt.Errorf("empty unix socket path")
	}

	addr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return APIListenAddr{}, fmt.Errorf("not a multiaddr and not /unix/<path>: %w", err)
	}
	return APIListenAddr{Multiaddr: addr}, nil
}

// New creates a fresh Config with a newly generated Ed25519 keypair, for
// the `init` CLI command.
func New(repoDir, dbPath, swarmListen, apiListen string) (*Config, error) {
	if repoDir == "" {
		return nil, &ParseError{Field: "repo_dir", Err: fmt.Errorf("empty path")}
	}
	if dbPath == "" {
		return nil, &ParseError{Field: "database_path", Err: fmt.Errorf("empty path")}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	swarmAddr, err := multiaddr.NewMultiaddr(swarmListen)
	if err != nil {
		return nil, &ParseError{Field: "swarm_listen", Err: err}
	}
	apiAddr, err := ParseAPIListen(apiListen)
	if err != nil {
		return nil, &ParseError{Field: "api_listen", Err: err}
	}
	return &Config{
		Keypair:      priv,
		RepoDir:      repoDir,
		DatabasePath: dbPath,
		SwarmListen:  swarmAddr,
		APIListen:    apiAddr,
	}, nil
}

// ToYAML serializes the config back to its on-disk YAML form.
func (c *Config) ToYAML() ([]byte, error) {
	keypair, err := multibase.Encode(multibase.Base58BTC, c.Keypair)
	if err != nil {
		return nil, err
	}
	serde := configSerde{
		Keypair:      keypair,
		RepoDir:      c.RepoDir,
		DatabasePath: c.DatabasePath,
		SwarmListen:  c.SwarmListen.String(),
		APIListen:    c.APIListen.String(),
	}
	return yaml.Marshal(serde)
}

// WriteNew writes a brand new config to path, refusing to overwrite an
// existing file (the `init` CLI command's contract, spec §6).
func WriteNew(path string, c *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: refusing to overwrite existing file %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	out, err := c.ToYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}
