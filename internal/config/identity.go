package config

import "os"

// LocalHost returns this node's advertised host name: the machine's
// hostname, used as the host half of the host:port identity key and to
// populate outbound GOSSIP/CONSENSUS envelopes. Overridden by loopback
// integration tests that need every node in a test cluster to share
// "127.0.0.1" instead of a real hostname (the original source always
// bound to its platform's hostname call; tests need a stable, routable
// loopback value instead).
var LocalHost = func() (string, error) {
	return os.Hostname()
}
