package pion

import "go.uber.org/zap"

// noopWakeLock satisfies the wake lock contract on hosts without a suspend
// inhibitor. Acquire/Release stay balanced so a real implementation can drop
// in later.
type noopWakeLock struct {
	logger *zap.SugaredLogger
}

func (w *noopWakeLock) Acquire() error {
	w.logger.Debugw("wake lock acquired (noop)")
	return nil
}

func (w *noopWakeLock) Release() {
	w.logger.Debugw("wake lock released (noop)")
}
