package model

import (
	"time"
)

// Role selects which view of the dashboard is composed
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleAgent:
		return true
	}
	return false
}

// StageCount is one funnel bar
type StageCount struct {
	Stage Stage `json:"stage"`
	Count int   `json:"count"`
	// Reached counts leads at this stage or later; zero for Lost and Unknown
	Reached int `json:"reached"`
	// CumulativeRate is Reached relative to the first stage, in percent
	CumulativeRate float64 `json:"cumulative_rate"`
}

// Conversion is the cumulative rate between two adjacent linear stages
type Conversion struct {
	From    Stage   `json:"from"`
	To      Stage   `json:"to"`
	Rate    float64 `json:"rate"`
	Defined bool    `json:"defined"`
}

// Funnel holds per-stage counts in enum order
type Funnel struct {
	Stages []StageCount `json:"stages"`
	Total  int          `json:"total"`
}

// Count returns the number of leads currently in stage s
func (f *Funnel) Count(s Stage) int {
	for _, sc := range f.Stages {
		if sc.Stage == s {
			return sc.Count
		}
	}
	return 0
}

// Summary is the headline metric row
type Summary struct {
	TotalLeads int     `json:"total_leads"`
	Qualified  int     `json:"qualified"`
	Won        int     `json:"won"`
	Lost       int     `json:"lost"`
	Active     int     `json:"active"`
	QualRate   float64 `json:"qual_rate"`
	WinRate    float64 `json:"win_rate"`
}

// Rollup aggregates leads grouped by agent, campaign or source
type Rollup struct {
	Key       string        `json:"key"`
	Total     int           `json:"total"`
	Stages    map[Stage]int `json:"stages"`
	Qualified int           `json:"qualified"`
	Won       int           `json:"won"`
	QualRate  float64       `json:"qual_rate"`
	WinRate   float64       `json:"win_rate"`
}

// FollowUp is a lead due for contact inside the requested window
type FollowUp struct {
	LeadID        string    `json:"lead_id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Stage         Stage     `json:"stage"`
	AgentAssigned string    `json:"agent_assigned"`
	BudgetRange   string    `json:"budget_range"`
	NextFollowUp  time.Time `json:"next_follow_up"`
	Notes         string    `json:"notes"`
}

// Bundle is every aggregate computed from one lead sequence
type Bundle struct {
	Summary     Summary      `json:"summary"`
	Funnel      Funnel       `json:"funnel"`
	Conversions []Conversion `json:"conversions"`
	Agents      []Rollup     `json:"agents"`
	Campaigns   []Rollup     `json:"campaigns"`
	Sources     []Rollup     `json:"sources"`
	FollowUps   []FollowUp   `json:"follow_ups"`
	RecentLeads []Lead       `json:"recent_leads"`
}

// View is the role-specific projection sent to the presentation layer
type View struct {
	Role        Role         `json:"role"`
	Agent       string       `json:"agent,omitempty"`
	Summary     Summary      `json:"summary"`
	Funnel      Funnel       `json:"funnel"`
	Conversions []Conversion `json:"conversions"`
	Agents      []Rollup     `json:"agents,omitempty"`
	Campaigns   []Rollup     `json:"campaigns,omitempty"`
	Sources     []Rollup     `json:"sources,omitempty"`
	FollowUps   []FollowUp   `json:"follow_ups,omitempty"`
	RecentLeads []Lead       `json:"recent_leads,omitempty"`
	Leads       []Lead       `json:"leads,omitempty"`
}
