package autotimer

// startTickerLocked arms the countdown tick if it is not already running.
func (s *Service) startTickerLocked() {
	if s.tick != nil {
		return
	}
	s.armTickLocked()
}

func (s *Service) armTickLocked() {
	gen := s.tickGen
	s.tick = s.clock.AfterFunc(s.cfg.TickInterval, func() { s.onTick(gen) })
}

func (s *Service) stopTickerLocked() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	s.tickGen++
}

// onTick broadcasts the remaining time without persisting anything.
func (s *Service) onTick(gen uint64) {
	s.mu.Lock()
	if gen != s.tickGen || s.delayed == nil {
		s.mu.Unlock()
		return
	}
	s.armTickLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	s.broadcast(st)
}
