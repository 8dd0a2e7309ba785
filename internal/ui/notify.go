package ui

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/stbtc-signer/internal/log"
)

// LogNotifier reports request outcomes to the log and keeps running totals.
type LogNotifier struct {
	logger   zerolog.Logger
	signed   atomic.Uint64
	declined atomic.Uint64
}

// NewLogNotifier returns a notifier logging to the withdraw component.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.Withdraw}
}

// NotifyResult records one outcome.
func (n *LogNotifier) NotifyResult(success bool) {
	if success {
		total := n.signed.Add(1)
		n.logger.Info().Uint64("signed", total).Msg("Request complete")
		return
	}
	total := n.declined.Add(1)
	n.logger.Info().Uint64("declined", total).Msg("Request ended without signature")
}

// Totals returns the number of signed and declined requests.
func (n *LogNotifier) Totals() (signed, declined uint64) {
	return n.signed.Load(), n.declined.Load()
}
