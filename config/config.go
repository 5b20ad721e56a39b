// Package config contains structures for parsing nsh client and server
// configurations.
package config

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"nsh.computer/nsh/common"
	"nsh.computer/nsh/core"
	"nsh.computer/nsh/keys"
	"nsh.computer/nsh/pkg/combinators"
	"nsh.computer/nsh/pkg/thunks"
	"nsh.computer/nsh/session"
)

// Duration is a time.Duration written as a string such as "10s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	if v < 0 {
		return errors.Errorf("negative duration %s", v)
	}
	*d = Duration(v)
	return nil
}

// ProxyConfigOptional holds the proxy settings shared by client and server.
type ProxyConfigOptional struct {
	ProxyAddress string
	ForceProxy   bool
	DialTimeout  *Duration
}

// ServerConfigOptional is the raw contents of an nshd config file.
type ServerConfigOptional struct {
	ProxyConfigOptional

	ListenAddress      string
	Key                string
	TickInterval       *Duration
	AuthorizedKeysFile string
	KnownHopsFile      string
}

// ClientConfigOptional is the raw contents of an nsh client config file.
type ClientConfigOptional struct {
	ProxyConfigOptional

	Key           string
	KnownHopsFile string
}

// ServerConfig is a loaded server configuration: every file it names has been
// read and parsed.
type ServerConfig struct {
	ListenAddress  string
	Key            *keys.SigningKeyPair
	Proxy          session.ProxyConfig
	TickInterval   time.Duration
	AuthorizedKeys *core.AuthorizedKeys
	KnownHops      core.KnownHops
}

// ClientConfig is a loaded client configuration.
type ClientConfig struct {
	Key       *keys.SigningKeyPair
	Proxy     session.ProxyConfig
	KnownHops core.KnownHops
}

func decodeFile(path string, v any) error {
	f, err := fileSystem.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := toml.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func loadFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := fileSystem.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	v, err := parse(f)
	if err != nil {
		return v, errors.Wrapf(err, "load %s", path)
	}
	return v, nil
}

func (p *ProxyConfigOptional) load() (session.ProxyConfig, error) {
	out := session.ProxyConfig{
		Force:   p.ForceProxy,
		Timeout: common.DefaultDialTimeout,
	}
	if p.DialTimeout != nil {
		out.Timeout = time.Duration(*p.DialTimeout)
	}
	if p.ProxyAddress != "" {
		addr, err := core.ParseNetAddr(p.ProxyAddress)
		if err != nil {
			return out, errors.Wrap(err, "ProxyAddress")
		}
		out.Address = addr
	} else if p.ForceProxy {
		return out, errors.New("ForceProxy requires ProxyAddress")
	}
	return out, nil
}

// LoadServerConfig turns raw settings into a ServerConfig, reading the key,
// authorized keys and known hops files.
func LoadServerConfig(raw *ServerConfigOptional) (*ServerConfig, error) {
	proxy, err := raw.load()
	if err != nil {
		return nil, err
	}
	c := &ServerConfig{
		ListenAddress: combinators.StringOr(raw.ListenAddress, common.DefaultListenAddress),
		Proxy:         proxy,
		TickInterval:  common.DefaultTickInterval,
	}
	if raw.TickInterval != nil && *raw.TickInterval > 0 {
		c.TickInterval = time.Duration(*raw.TickInterval)
	}
	if c.Key, err = loadFile(combinators.StringOr(raw.Key, DefaultServerKeyPath()), keys.ReadSigningKey); err != nil {
		return nil, err
	}
	if raw.AuthorizedKeysFile != "" {
		if c.AuthorizedKeys, err = loadFile(raw.AuthorizedKeysFile, core.ParseAuthorizedKeys); err != nil {
			return nil, err
		}
	}
	if raw.KnownHopsFile != "" {
		if c.KnownHops, err = loadFile(raw.KnownHopsFile, core.ParseKnownHops); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadServerConfigFromFile parses the TOML file at path and loads it as a
// ServerConfig.
func LoadServerConfigFromFile(path string) (*ServerConfig, error) {
	var raw ServerConfigOptional
	if err := decodeFile(path, &raw); err != nil {
		return nil, err
	}
	return LoadServerConfig(&raw)
}

// LoadClientConfig turns raw settings into a ClientConfig. The known hops
// file is optional when it is not named explicitly.
func LoadClientConfig(raw *ClientConfigOptional) (*ClientConfig, error) {
	proxy, err := raw.load()
	if err != nil {
		return nil, err
	}
	c := &ClientConfig{Proxy: proxy}
	if c.Key, err = loadFile(combinators.StringOr(raw.Key, DefaultKeyPath()), keys.ReadSigningKey); err != nil {
		return nil, err
	}
	if raw.KnownHopsFile != "" {
		if c.KnownHops, err = loadFile(raw.KnownHopsFile, core.ParseKnownHops); err != nil {
			return nil, err
		}
	} else if hops, err := loadFile(filepath.Join(UserDirectory(), common.KnownHopsFile), core.ParseKnownHops); err == nil {
		c.KnownHops = hops
	}
	return c, nil
}

// LoadClientConfigFromFile parses the TOML file at path and loads it as a
// ClientConfig.
func LoadClientConfigFromFile(path string) (*ClientConfig, error) {
	var raw ClientConfigOptional
	if err := DecodeClientConfigFile(path, &raw); err != nil {
		return nil, err
	}
	return LoadClientConfig(&raw)
}

// DecodeClientConfigFile parses the TOML file at path into raw without
// loading the files it names.
func DecodeClientConfigFile(path string, raw *ClientConfigOptional) error {
	return decodeFile(path, raw)
}

var clientDirectory string
var clientDirectoryOnce sync.Once

func locateClientConfigDirectory() {
	home, err := thunks.UserHomeDir()
	if err != nil {
		clientDirectory = ""
		return
	}
	clientDirectory = filepath.Join(home, common.UserConfigDirectory)
}

// UserDirectory returns the path to the nsh configuration directory for the
// current user.
func UserDirectory() string {
	clientDirectoryOnce.Do(locateClientConfigDirectory)
	return clientDirectory
}

// ServerDirectory returns the directory used for server configuration.
func ServerDirectory() string {
	return common.ServerConfigDirectory
}

// DefaultKeyPath returns UserDirectory()/id_nsh.pem.
func DefaultKeyPath() string {
	return filepath.Join(UserDirectory(), common.DefaultKeyFile)
}

// DefaultServerKeyPath returns ServerDirectory()/id_nsh.pem.
func DefaultServerKeyPath() string {
	return filepath.Join(ServerDirectory(), common.DefaultKeyFile)
}

// DefaultClientConfigPath returns UserDirectory()/config.toml.
func DefaultClientConfigPath() string {
	return filepath.Join(UserDirectory(), common.ConfigFile)
}

// DefaultServerConfigPath returns ServerDirectory()/config.toml.
func DefaultServerConfigPath() string {
	return filepath.Join(ServerDirectory(), common.ConfigFile)
}
