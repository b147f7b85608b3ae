package domain

import (
	"encoding/json"
	"time"
)

// VoterSet is an insertion-ordered set of voter ids
type VoterSet struct {
	ids []string
}

// NewVoterSet builds a set, collapsing duplicates
func NewVoterSet(ids ...string) VoterSet {
	var s VoterSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts a voter; returns false if the voter was already present
func (s *VoterSet) Add(voterID string) bool {
	if voterID == "" || s.Has(voterID) {
		return false
	}
	s.ids = append(s.ids, voterID)
	return true
}

// Has checks membership
func (s VoterSet) Has(voterID string) bool {
	for _, id := range s.ids {
		if id == voterID {
			return true
		}
	}
	return false
}

// Len returns the number of distinct voters
func (s VoterSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the voter ids in insertion order
func (s VoterSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s VoterSet) clone() VoterSet {
	return VoterSet{ids: s.IDs()}
}

// MarshalJSON encodes the set as a plain array
func (s VoterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array, dropping repeated voters
func (s *VoterSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewVoterSet(ids...)
	return nil
}

// PollOption is one choice of a poll
type PollOption struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Votes VoterSet `json:"votes"`
}

// Poll is identified by ID alone, whatever payload shape it arrived in
type Poll struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	AllowMultiple bool         `json:"allowMultiple"`
	Anonymous     bool         `json:"anonymous"`
	TotalVotes    int          `json:"totalVotes"`
	CreatedAt     time.Time    `json:"createdAt"`
	CreatorID     string       `json:"creatorId,omitempty"`
	CreatorName   string       `json:"creatorName,omitempty"`
}

// Clone deep-copies the poll including every vote set
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	c := *p
	if p.Options != nil {
		c.Options = make([]PollOption, len(p.Options))
		for i, o := range p.Options {
			c.Options[i] = PollOption{ID: o.ID, Text: o.Text, Votes: o.Votes.clone()}
		}
	}
	return &c
}

// CountVotes sums the vote-set sizes across all options
func (p *Poll) CountVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes.Len()
	}
	return total
}

// PollUpdate is an authoritative server snapshot of a poll.
// HasOptions and HasTotal tell which of the optional fields the server sent.
type PollUpdate struct {
	Poll       Poll
	HasOptions bool
	HasTotal   bool
}
