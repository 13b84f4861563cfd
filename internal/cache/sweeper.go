package cache

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule runs the sweeper once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically purges expired entries from an in-process store.
type Sweeper struct {
	cron   *cron.Cron
	store  Purger
	spec   string
	logger *zap.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper for store running on the cron spec (e.g. "@every 1m").
func NewSweeper(store Purger, spec string, logger *zap.Logger) *Sweeper {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:   cron.New(),
		store:  store,
		spec:   spec,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the purge job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Debug("Cache sweeper started", zap.String("spec", s.spec))
	return nil
}

// Sweep purges expired entries once and returns how many were removed.
func (s *Sweeper) Sweep() int {
	n := s.store.Purge(s.now())
	if n > 0 {
		s.logger.Debug("Purged expired cache entries", zap.Int("count", n))
	}
	return n
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
