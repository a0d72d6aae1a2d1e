package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions returns an error if a config file has overly
// permissive permissions (any group/world bit set).
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads a YAML config file and overlays it onto the defaults for
// peerPort. Fields absent from the file keep their default value, so a
// config file only needs to set what it wants to override (e.g. a shorter
// PeerTTL/Interval for faster-converging test scenarios).
func Load(path string, peerPort int) (*Config, error) {
	cfg := Default(peerPort)

	if path == "" {
		return cfg, nil
	}
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if overlay.Version != 0 {
		if overlay.Version > CurrentConfigVersion {
			return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade omnode", ErrConfigVersionTooNew, overlay.Version, CurrentConfigVersion)
		}
		cfg.Version = overlay.Version
	}
	if overlay.Network.PeerPort != 0 {
		cfg.Network.PeerPort = overlay.Network.PeerPort
	}
	if overlay.Network.ClientPort != 0 {
		cfg.Network.ClientPort = overlay.Network.ClientPort
	}
	if len(overlay.Discovery.WellKnownHosts) > 0 {
		for _, host := range overlay.Discovery.WellKnownHosts {
			if host == "" {
				return nil, fmt.Errorf("%w: empty entry in discovery.well_known_hosts", ErrInvalidWellKnownHost)
			}
		}
		cfg.Discovery.WellKnownHosts = overlay.Discovery.WellKnownHosts
	}
	if overlay.Discovery.PeerTTL != 0 {
		cfg.Discovery.PeerTTL = overlay.Discovery.PeerTTL
	}
	if overlay.Gossip.Interval != 0 {
		cfg.Gossip.Interval = overlay.Gossip.Interval
	}
	if overlay.Gossip.Fanout != 0 {
		cfg.Gossip.Fanout = overlay.Gossip.Fanout
	}
	if overlay.Gossip.SeenCacheSize != 0 {
		cfg.Gossip.SeenCacheSize = overlay.Gossip.SeenCacheSize
	}
	if overlay.Consensus.RoundTimeout != 0 {
		cfg.Consensus.RoundTimeout = overlay.Consensus.RoundTimeout
	}
	if overlay.Consensus.DefaultOM != 0 {
		cfg.Consensus.DefaultOM = overlay.Consensus.DefaultOM
	}
	if overlay.Telemetry.Metrics.Enabled {
		cfg.Telemetry.Metrics = overlay.Telemetry.Metrics
		if cfg.Telemetry.Metrics.ListenAddress == "" {
			cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9091"
		}
	}

	return cfg, nil
}
