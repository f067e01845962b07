package auth

// Session remembers the registry hosts already logged in during this run.
// It is never persisted and is not safe for concurrent use.
type Session struct {
	hosts map[string]struct{}
	order []string
}

// NewSession returns a session, optionally pre-populated with hosts.
func NewSession(hosts ...string) *Session {
	s := &Session{hosts: map[string]struct{}{}}
	for _, h := range hosts {
		s.Add(h)
	}
	return s
}

func (s *Session) Has(host string) bool {
	_, ok := s.hosts[host]
	return ok
}

func (s *Session) Add(host string) {
	if s.Has(host) {
		return
	}
	s.hosts[host] = struct{}{}
	s.order = append(s.order, host)
}

// Hosts lists the authenticated hosts in login order.
func (s *Session) Hosts() []string {
	return append([]string(nil), s.order...)
}
