package signaling

// Liveness answers whether a connection identifier is still connected.
// *Registry satisfies it.
type Liveness interface {
	IsLive(id string) bool
}

// MatchResult is the outcome of Queue.EnqueueOrMatch.
type MatchResult struct {
	// Matched is true when a partner was taken from the queue.
	Matched   bool
	PartnerID string
	RoomID    string

	// Duplicate is true when the caller was already waiting; nothing changed.
	Duplicate bool

	// Race is true when the selected partner vanished between the eviction
	// pass and confirmation. The caller has been queued in its place.
	Race bool
}

// Queue holds the identifiers of connections waiting for a partner.
//
// Pairing uses stack discipline: the most recently enqueued identifier is
// matched first. Queue is not safe for concurrent use; the Hub's event loop
// is its only owner.
type Queue struct {
	ids  []string
	live Liveness
}

// NewQueue creates an empty Queue that consults live before offering a match.
func NewQueue(live Liveness) *Queue {
	return &Queue{live: live}
}

// RoomID derives the room identifier for a match confirmed by caller.
func RoomID(caller, partner string) string {
	return caller + "#" + partner
}

// EnqueueOrMatch either pairs id with a waiting partner or stores id for the
// next arrival.
func (q *Queue) EnqueueOrMatch(id string) MatchResult {
	q.evictStale()

	if q.Contains(id) {
		return MatchResult{Duplicate: true}
	}

	if len(q.ids) == 0 {
		q.ids = append(q.ids, id)
		return MatchResult{}
	}

	partner := q.ids[len(q.ids)-1]
	q.ids = q.ids[:len(q.ids)-1]

	// Retried on the caller's next join, not here.
	if !q.live.IsLive(partner) {
		q.ids = append(q.ids, id)
		return MatchResult{Race: true}
	}

	return MatchResult{
		Matched:   true,
		PartnerID: partner,
		RoomID:    RoomID(id, partner),
	}
}

// Requeue stores id without attempting a match. It is a no-op if id is
// already waiting.
func (q *Queue) Requeue(id string) {
	if q.Contains(id) {
		return
	}
	q.ids = append(q.ids, id)
}

// Remove deletes id from the queue, reporting whether it was present.
func (q *Queue) Remove(id string) bool {
	for i, queued := range q.ids {
		if queued == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id string) bool {
	for _, queued := range q.ids {
		if queued == id {
			return true
		}
	}
	return false
}

// Len returns the number of waiting identifiers.
func (q *Queue) Len() int {
	return len(q.ids)
}

// Snapshot returns a copy of the queue, oldest first.
func (q *Queue) Snapshot() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}

// evictStale drops every identifier whose connection is gone.
func (q *Queue) evictStale() {
	kept := q.ids[:0]
	for _, id := range q.ids {
		if q.live.IsLive(id) {
			kept = append(kept, id)
		}
	}
	// Clear the tail so evicted strings are not retained by the backing array.
	for i := len(kept); i < len(q.ids); i++ {
		q.ids[i] = ""
	}
	q.ids = kept
}
