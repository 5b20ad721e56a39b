package flags

import (
	"github.com/spf13/pflag"

	"nsh.computer/nsh/config"
	"nsh.computer/nsh/pkg/combinators"
)

// ServerFlags holds CLI args for nshd.
type ServerFlags struct {
	CommonFlags

	// ListenAddress overrides the address from the config file.
	ListenAddress string
}

// DefineServerFlags registers the nshd flags on fs.
func DefineServerFlags(fs *pflag.FlagSet, f *ServerFlags) {
	defineCommonFlags(fs, &f.CommonFlags, "path to server config file (default "+config.DefaultServerConfigPath()+")")
	fs.StringVarP(&f.ListenAddress, "listen", "l", "", "address to listen on, overriding the config file")
}

// ServerConfigFromFlags loads the config file named by the flags, or the
// default one, and applies the flag overrides.
func ServerConfigFromFlags(f *ServerFlags) (*config.ServerConfig, error) {
	sc, err := config.LoadServerConfigFromFile(combinators.StringOr(f.ConfigPath, config.DefaultServerConfigPath()))
	if err != nil {
		return nil, err
	}
	if f.ListenAddress != "" {
		sc.ListenAddress = f.ListenAddress
	}
	return sc, nil
}
