package common

import "time"

const (
	// UserConfigDirectory is the dirname of the directory holding the user
	// configuration for the nsh client.
	UserConfigDirectory = ".nsh"

	// ServerConfigDirectory holds the configuration of nshd.
	ServerConfigDirectory = "/etc/nshd"

	// ConfigFile is the name of the configuration file inside either
	// configuration directory.
	ConfigFile = "config.toml"

	// KnownHopsFile is the name of the file mapping hop aliases to addresses
	// and identities.
	KnownHopsFile = "known_hops"

	// DefaultKeyFile is the name of the signing key file used when none is
	// specified in the config file.
	DefaultKeyFile = "id_nsh.pem"

	// DefaultListenPortString is the string version of the nsh default listen
	// port.
	DefaultListenPortString = "4242"

	// DefaultListenAddress is where nshd listens when the config names no
	// address.
	DefaultListenAddress = ":" + DefaultListenPortString
)

const (
	// DefaultDialTimeout bounds outbound connects, proxy negotiation and
	// handshakes.
	DefaultDialTimeout = 10 * time.Second

	// DefaultTickInterval is how often the reactor ticks.
	DefaultTickInterval = time.Second
)
