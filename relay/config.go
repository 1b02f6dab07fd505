package relay

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/wlrelay/wlrelay/codec"
	"github.com/wlrelay/wlrelay/damage"
)

// Config is the on-disk shape of a wlrelay process's TOML configuration
// file, decoded with github.com/pelletier/go-toml/v2 the way
// _examples/dsmmcken-dh-cli decodes its own config.toml. cmd/wlrelay seeds
// its functional options from this struct; library callers that construct
// a Session directly can skip it entirely.
type Config struct {
	// LocalSocket is the AF_UNIX socket path this process listens on (or
	// dials, if DialLocal is true) for the raw Wayland side of the connection:
	// the local client's display socket on the client-side instance, or
	// the real compositor's socket on the display-side instance.
	LocalSocket string `toml:"local_socket"`
	DialLocal   bool   `toml:"dial_local,omitempty"`

	// PeerListen and PeerDial name the AF_UNIX socket used for the tunnel
	// to the paired wlrelay process; exactly one should be set. The
	// process-launching and reconnection-supervision that pick which
	// process listens and which dials are external to this module
	// (spec.md §1); Config only records the already-decided address.
	PeerListen string `toml:"peer_listen,omitempty"`
	PeerDial   string `toml:"peer_dial,omitempty"`

	// OnDisplaySide marks this instance as the one adjacent to the real
	// display server (spec §4.4, §6's on_display_side flag), the other
	// being adjacent to the client.
	OnDisplaySide bool `toml:"on_display_side"`

	// MergeMargin overrides damage.DefaultMergeMargin. Zero means "use
	// the default."
	MergeMargin int32 `toml:"merge_margin,omitempty"`

	// Codec names the compression codec.Name used for damage region
	// transfers. Empty means codec.NameNone.
	Codec string `toml:"codec,omitempty"`

	// ReadLimit bounds the largest tunnel frame payload accepted
	// (wire.WithReadLimit). Zero means no additional limit.
	ReadLimit int `toml:"read_limit,omitempty"`

	// MetricsAddr, if non-empty, is the address a Prometheus /metrics
	// HTTP endpoint is served on (see Metrics and cmd/wlrelay).
	MetricsAddr string `toml:"metrics_addr,omitempty"`

	// LogLevel is a zapcore level name ("debug", "info", "warn", "error").
	// Empty means "info".
	LogLevel string `toml:"log_level,omitempty"`
}

// LoadConfig reads and decodes a TOML config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: reading config: %w", err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("relay: parsing config: %w", err)
	}
	return cfg, nil
}

// mergeMargin returns the configured merge margin, falling back to
// damage.DefaultMergeMargin.
func (c *Config) mergeMargin() int32 {
	if c == nil || c.MergeMargin == 0 {
		return damage.DefaultMergeMargin
	}
	return c.MergeMargin
}

// codecName returns the configured codec.Name, defaulting to NameNone.
func (c *Config) codecName() codec.Name {
	if c == nil || c.Codec == "" {
		return codec.NameNone
	}
	return codec.Name(c.Codec)
}

// Validate reports a descriptive error for a Config that cannot be used to
// start a Session: exactly one of PeerListen/PeerDial must be set, and
// LocalSocket must be non-empty.
func (c *Config) Validate() error {
	if c.LocalSocket == "" {
		return fmt.Errorf("relay: config: local_socket is required")
	}
	if (c.PeerListen == "") == (c.PeerDial == "") {
		return fmt.Errorf("relay: config: exactly one of peer_listen or peer_dial is required")
	}
	return nil
}
