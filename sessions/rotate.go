package sessions

// Plan is the outcome of the rotation decision for one login attempt.
// Exactly one of three shapes:
//   - Refresh set: an existing session shares the caller's fingerprint and
//     is updated in place.
//   - Evict set: the user is over the cap and no other session matches, so
//     the oldest session is deleted and a fresh one inserted.
//   - Neither set: a fresh session is inserted.
type Plan struct {
	Refresh *Session
	Evict   *Session
}

// PlanRotation evaluates the rotation algorithm against the user's current
// sessions ordered by LoggedIn ascending. Eviction triggers when the count
// has reached maxSessions, so under serialized access a user never holds
// more than maxSessions live sessions. In the at-cap branch the oldest
// session is excluded from the fingerprint search: if only the oldest
// matches, it is still evicted.
func PlanRotation(current []Session, maxSessions int, fingerprint string) Plan {
	if len(current) == 0 {
		return Plan{}
	}

	if len(current) >= maxSessions {
		oldest := current[0]
		if match := findFingerprint(current[1:], fingerprint); match != nil {
			return Plan{Refresh: match}
		}
		return Plan{Evict: &oldest}
	}

	if match := findFingerprint(current, fingerprint); match != nil {
		return Plan{Refresh: match}
	}
	return Plan{}
}

func findFingerprint(list []Session, fingerprint string) *Session {
	for i := range list {
		if list[i].Fingerprint == fingerprint {
			s := list[i]
			return &s
		}
	}
	return nil
}
