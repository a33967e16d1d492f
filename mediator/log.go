package mediator

import "github.com/btcsuite/btclog"

// log is this package's logger, following the per-subsystem btclog.Logger
// convention: silent until the host wires a real backend in with
// UseLogger.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by package mediator.
func UseLogger(logger btclog.Logger) {
	log = logger
}
