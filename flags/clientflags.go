package flags

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/pflag"

	"nsh.computer/nsh/config"
	"nsh.computer/nsh/pkg/combinators"
)

// ClientFlags holds CLI args for the nsh client. Set flags override the
// config file.
type ClientFlags struct {
	CommonFlags

	KeyPath      string
	ProxyAddress string
	ForceProxy   bool
	Timeout      time.Duration
}

// DefineClientFlags registers the nsh client flags on set.
func DefineClientFlags(set *pflag.FlagSet, f *ClientFlags) {
	defineCommonFlags(set, &f.CommonFlags, "path to client config file (default "+config.DefaultClientConfigPath()+")")
	set.StringVarP(&f.KeyPath, "key", "i", "", "signing key file (default "+config.DefaultKeyPath()+")")
	set.StringVar(&f.ProxyAddress, "proxy", "", "SOCKS5 proxy address, host:port")
	set.BoolVar(&f.ForceProxy, "force-proxy", false, "tunnel every connection through the proxy")
	set.DurationVarP(&f.Timeout, "timeout", "t", 0, "connect and handshake timeout")
}

// ClientConfigFromFlags reads the client config file, applies the flag
// overrides and loads the result. The default config file may be absent.
func ClientConfigFromFlags(f *ClientFlags) (*config.ClientConfig, error) {
	var raw config.ClientConfigOptional
	err := config.DecodeClientConfigFile(combinators.StringOr(f.ConfigPath, config.DefaultClientConfigPath()), &raw)
	if err != nil && (f.ConfigPath != "" || !errors.Is(err, fs.ErrNotExist)) {
		return nil, err
	}
	mergeClientFlags(&raw, f)
	return config.LoadClientConfig(&raw)
}

func mergeClientFlags(raw *config.ClientConfigOptional, f *ClientFlags) {
	if f.KeyPath != "" {
		raw.Key = f.KeyPath
	}
	if f.ProxyAddress != "" {
		raw.ProxyAddress = f.ProxyAddress
	}
	if f.ForceProxy {
		raw.ForceProxy = true
	}
	if f.Timeout > 0 {
		d := config.Duration(f.Timeout)
		raw.DialTimeout = &d
	}
}

// KeygenFlags holds CLI args for nsh-keygen.
type KeygenFlags struct {
	Output string
	Force  bool
}

// DefineKeygenFlags registers the nsh-keygen flags on set.
func DefineKeygenFlags(set *pflag.FlagSet, f *KeygenFlags) {
	set.StringVarP(&f.Output, "output", "o", "", "write the private key here (default "+config.DefaultKeyPath()+")")
	set.BoolVarP(&f.Force, "force", "f", false, "overwrite an existing key file")
}

// OutputPath returns the key path to write.
func (f *KeygenFlags) OutputPath() string {
	return combinators.StringOr(f.Output, config.DefaultKeyPath())
}
