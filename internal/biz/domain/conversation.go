package domain

// GroupInfo is the group metadata shown in the conversation header
type GroupInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CourseName string   `json:"coursename,omitempty"`
	Members    []Member `json:"members,omitempty"`
}

// FindMemberByID finds a member by ID
func (g *GroupInfo) FindMemberByID(userID string) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// DayGroup is one calendar-day bucket of the timeline
type DayGroup struct {
	Label string         `json:"label"`
	Items []TimelineItem `json:"items"`
}
