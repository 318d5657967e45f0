package server

// slots is a counting semaphore over a buffered channel that refuses
// instead of waiting when every permit is taken.
type slots struct {
	sem chan struct{}
}

func newSlots(n int) *slots {
	if n < 1 {
		n = 1
	}
	return &slots{sem: make(chan struct{}, n)}
}

// tryAcquire takes a permit if one is free.
func (s *slots) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *slots) release() {
	<-s.sem
}

func (s *slots) inUse() int {
	return len(s.sem)
}
