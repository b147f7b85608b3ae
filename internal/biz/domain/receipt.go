package domain

// ReadReceiptBatch collects the message ids acknowledged in one visibility pass
type ReadReceiptBatch struct {
	GroupID    string  `json:"groupId"`
	MessageIDs []int64 `json:"messageIds"`
}

// ObservedSet tracks item ids already evaluated for read receipts in a session
type ObservedSet struct {
	ids map[string]struct{}
}

// NewObservedSet creates an empty set
func NewObservedSet() *ObservedSet {
	return &ObservedSet{ids: make(map[string]struct{})}
}

// Has checks if the id was already evaluated
func (s *ObservedSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Mark records the id as evaluated
func (s *ObservedSet) Mark(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

// Len returns the number of evaluated ids
func (s *ObservedSet) Len() int {
	return len(s.ids)
}

// Reset forgets every evaluated id
func (s *ObservedSet) Reset() {
	s.ids = make(map[string]struct{})
}
