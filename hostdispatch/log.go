package hostdispatch

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the subsystem logger used by package hostdispatch.
func UseLogger(logger btclog.Logger) {
	log = logger
}
