package model

import (
	"time"
)

// UnassignedAgent marks leads nobody owns yet
const UnassignedAgent = "Unassigned"

// Unspecified fills blank categorical columns
const Unspecified = "Unspecified"

// Row is one raw spreadsheet record keyed by header text
type Row map[string]string

// Lead represents one normalized row of the Lead Tracker worksheet
type Lead struct {
	LeadID          string     `json:"lead_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	LeadSource      string     `json:"lead_source"`
	CampaignName    string     `json:"campaign_name"`
	Stage           Stage      `json:"current_stage"`
	AgentAssigned   string     `json:"agent_assigned"`
	BudgetRange     string     `json:"budget_range"`
	DateCollected   *time.Time `json:"date_collected,omitempty"`
	LastContactDate *time.Time `json:"last_contact_date,omitempty"`
	NextFollowUp    *time.Time `json:"next_follow_up,omitempty"`
	Notes           string     `json:"notes"`
}

// IsAssigned reports whether the lead belongs to a named agent
func (l *Lead) IsAssigned() bool {
	return l.AgentAssigned != "" && l.AgentAssigned != UnassignedAgent
}

// Snapshot is the full set of leads produced by one fetch.
// It is never mutated after construction.
type Snapshot struct {
	Spreadsheet string    `json:"spreadsheet"`
	Worksheet   string    `json:"worksheet"`
	Leads       []Lead    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
	Issues      int       `json:"issues"`
}
