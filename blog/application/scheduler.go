package application

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Start runs a reconciliation immediately and then on every tick of interval, plus
// whenever Trigger is called. It returns at once; Close stops the loop.
func (s *PostService) Start(interval time.Duration) {
	s.wg.Go(func() {
		s.run(interval)
	})
}

func (s *PostService) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Starting reconciliation loop")
	s.reconcileAndLog()

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("Stopped reconciliation loop")
			return
		case <-ticker.C:
			s.reconcileAndLog()
		case <-s.trigger:
			s.reconcileAndLog()
		}
	}
}

// Trigger asks the running loop for an extra pass. Requests made while one is already
// queued are coalesced.
func (s *PostService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}
