// Package sweep records OFF for slots in which no report arrived.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/logic"
	"github.com/sweeney/outlet-monitor/internal/timeline"
)

// Store is the part of timeline.Store the scheduler drives.
type Store interface {
	Sweep(mark time.Time) (timeline.Result, bool, error)
	Flush() error
}

// Recorder observes sweep passes.
type Recorder interface {
	Swept(wrote bool, err error)
}

// Scheduler wakes shortly after every grid mark and records OFF at the
// current mark unless a report has already covered it.
type Scheduler struct {
	Store     Store
	ExtraWait time.Duration
	Log       *zap.Logger
	Recorder  Recorder

	// Now and After default to time.Now and time.After.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// Delay returns how long to wait at now before the next sweep.
func (s *Scheduler) Delay(now time.Time) time.Duration {
	return logic.NextMark(now).Sub(now) + s.ExtraWait
}

// Run loops until ctx is cancelled, then saves the timeline one last time.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	after := s.After
	if after == nil {
		after = time.After
	}
	log := s.logger()

	for {
		d := s.Delay(now())
		select {
		case <-ctx.Done():
			if err := s.Store.Flush(); err != nil {
				log.Error("final save failed", zap.Error(err))
				return err
			}
			log.Info("final save complete")
			return nil
		case <-after(d):
		}
		s.Once(now())
	}
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log.Named("sweep")
}

// Once runs a single sweep for the slot containing now. The mark is always
// floored, whatever rounding ingestion uses, so a late wakeup never writes a
// slot that has not started.
func (s *Scheduler) Once(now time.Time) {
	log := s.logger()
	mark := logic.Floor(now)
	res, wrote, err := s.Store.Sweep(mark)
	if s.Recorder != nil {
		s.Recorder.Swept(wrote, err)
	}
	switch {
	case err != nil:
		log.Error("sweep failed", zap.Time("mark", mark), zap.Error(err))
	case wrote:
		log.Info("no report for slot, recorded OFF", zap.Time("mark", mark), zap.Int("changes", len(res.Changes)))
	default:
		log.Debug("slot already reported", zap.Time("mark", mark))
	}
}
