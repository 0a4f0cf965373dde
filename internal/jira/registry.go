package jira

// NameRegistry resolves status IDs to display names.
type NameRegistry struct {
	Statuses map[string]string // ID -> Name
}

// GetStatusName returns the name for a status ID, or "" if unknown.
func (r *NameRegistry) GetStatusName(id string) string {
	if r == nil || id == "" {
		return ""
	}
	return r.Statuses[id]
}
