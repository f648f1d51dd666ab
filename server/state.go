package server

import (
	"sync"

	"github.com/viant/idebridge/host"
)

// connectionState tracks live sessions across both transports and the single
// current notification target.
type connectionState struct {
	mux    sync.Mutex
	live   int
	target Outbound
	host   host.Host
}

// open registers a new session whose outbound path becomes the notification target
func (s *connectionState) open(target Outbound) {
	s.mux.Lock()
	s.live++
	s.target = target
	s.mux.Unlock()
	s.host.OnConnectionChanged(true)
}

// close unregisters a session; the target is cleared only if it still belongs to it.
// The host hears about it once the last session is gone.
func (s *connectionState) close(target Outbound) {
	s.mux.Lock()
	if s.live > 0 {
		s.live--
	}
	if s.target == target {
		s.target = nil
	}
	connected := s.live > 0
	s.mux.Unlock()
	if !connected {
		s.host.OnConnectionChanged(false)
	}
}

func (s *connectionState) connected() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.live > 0
}

func (s *connectionState) sessions() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.live
}

func (s *connectionState) currentTarget() Outbound {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.target
}

// notify pushes data to the current target; no target is not an error
func (s *connectionState) notify(data []byte) error {
	target := s.currentTarget()
	if target == nil {
		return nil
	}
	return target.Send(data)
}

func newConnectionState(aHost host.Host) *connectionState {
	return &connectionState{host: aHost}
}
