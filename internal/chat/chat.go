package chat

import "sort"

// Message is an immutable chat entry. Produced only by translated
// transport message events; the log it lives in is append-only.
type Message struct {
	Text   string
	Sender string
}

// UserSet tracks online user identifiers. Insertion and removal are
// idempotent; removing an absent identifier is a no-op.
type UserSet map[string]struct{}

func NewUserSet() UserSet {
	return make(UserSet)
}

func (s UserSet) Add(uuid string) {
	if uuid == "" {
		return
	}
	s[uuid] = struct{}{}
}

func (s UserSet) Remove(uuid string) {
	delete(s, uuid)
}

func (s UserSet) Has(uuid string) bool {
	_, ok := s[uuid]
	return ok
}

func (s UserSet) Len() int {
	return len(s)
}

// List returns the identifiers in sorted order for stable rendering.
func (s UserSet) List() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
