package oracle

import (
	"os"
	"os/signal"
	"sync/atomic"

	"go.uber.org/zap"
)

// CtrlcHandler turns interrupt signals into a flag the main loop polls
// between iterations. A second interrupt while shutdown is pending aborts
// the process immediately.
type CtrlcHandler struct {
	stop atomic.Bool
}

func InitCtrlcHandler(logger *zap.Logger) *CtrlcHandler {
	h := &CtrlcHandler{}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		logger.Info("interrupt received, finishing the current iteration; interrupt again to abort")
		h.stop.Store(true)
		<-ch
		logger.Warn("second interrupt received, aborting")
		os.Exit(1)
	}()
	return h
}

// Poll reports whether shutdown was requested.
func (h *CtrlcHandler) Poll() bool {
	return h.stop.Load()
}
