package session

import "time"

// Prune drops sessions not seen for maxIdle and returns how many went.
// A load still in flight for a dropped session finishes unobserved.
func (st *Store) Prune(maxIdle time.Duration) int {
	cutoff := st.now().Add(-maxIdle)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.lastSeen().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
