package domain

// Member represents a group member (value object)
type Member struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
}

// DisplayName returns the name, falling back to the user id
func (m *Member) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.UserID
}
