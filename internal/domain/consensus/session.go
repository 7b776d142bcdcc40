package consensus

import "sort"

// evidence is the per-identity tally of qualifying frames.
type evidence struct {
	count int
	sum   float64
}

// session is the fold state of one Run. It is never shared.
type session struct {
	evidence  map[string]*evidence
	unknown   int
	processed int
	maxSim    float64
	maxName   string
}

func newSession() *session {
	return &session{evidence: make(map[string]*evidence)}
}

func (s *session) unknownFrame() {
	s.unknown++
}

// observe folds one matched frame. qualifies reports whether it counted as
// evidence for name.
func (s *session) observe(name string, sim float64, qualifies bool) {
	if qualifies {
		ev, ok := s.evidence[name]
		if !ok {
			ev = &evidence{}
			s.evidence[name] = ev
		}
		ev.count++
		ev.sum += sim
	} else {
		s.unknown++
	}
	if sim > s.maxSim {
		s.maxSim = sim
		s.maxName = name
	}
}

// consensusName returns the first identity, in ascending name order, with at
// least n qualifying frames.
func (s *session) consensusName(n int) (string, bool) {
	names := make([]string, 0, len(s.evidence))
	for name, ev := range s.evidence {
		if ev.count >= n {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}

// average returns sum/count for name, or the session max when name has no
// qualifying frames.
func (s *session) average(name string) float64 {
	ev, ok := s.evidence[name]
	if !ok || ev.count == 0 {
		return s.maxSim
	}
	return ev.sum / float64(ev.count)
}
