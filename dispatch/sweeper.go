package dispatch

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/queue"
)

// Sweeper re-runs the completed-job purge on a fixed interval as a backstop
// against store accumulation, independent of the per-job remove-on-complete
// bookkeeping. Start and Stop tie it to the process lifecycle.
type Sweeper struct {
	queue  *queue.Queue
	cron   *cron.Cron
	every  time.Duration
	logger *zap.SugaredLogger
}

// NewSweeper creates a sweeper that purges completed jobs every interval.
func NewSweeper(q *queue.Queue, every time.Duration, logger *zap.SugaredLogger) (*Sweeper, error) {
	if every <= 0 {
		return nil, errors.Newf("sweep interval must be positive, got %s", every)
	}

	s := &Sweeper{
		queue:  q,
		cron:   cron.New(),
		every:  every,
		logger: logger.Named("sweeper"),
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), s.sweep); err != nil {
		return nil, errors.Wrap(err, "failed to schedule completed-job sweep")
	}

	return s, nil
}

// Start begins the recurring sweep.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Infow("Completed-job sweeper started", "every", s.every)
}

// Stop halts the recurring sweep, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Infow("Completed-job sweeper stopped")
}

func (s *Sweeper) sweep() {
	purged, err := s.queue.PurgeCompleted()
	if err != nil {
		s.logger.Warnw("Completed-job sweep failed", "error", err)
		return
	}
	if purged > 0 {
		s.logger.Infow("Swept completed jobs", "purged", purged)
	}
}
