package service

import (
	"sort"
	"strings"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
)

// ViewRequest selects the projection Compose builds
type ViewRequest struct {
	Role  model.Role
	Agent string
	// Stage optionally narrows the agent's own lead list
	Stage *model.Stage
}

// Compose projects a snapshot onto the view for req.Role:
//   - admin: everything
//   - client: summary, funnel and campaign rollups, no agent or contact data
//   - agent: metrics and follow-ups over the leads assigned to req.Agent
func Compose(snap *model.Snapshot, req ViewRequest, opts AggregateOptions) (*model.View, error) {
	var leads []model.Lead
	if snap != nil {
		leads = snap.Leads
	}

	switch req.Role {
	case model.RoleAdmin:
		b := Aggregate(leads, opts)
		return &model.View{
			Role:        model.RoleAdmin,
			Summary:     b.Summary,
			Funnel:      b.Funnel,
			Conversions: b.Conversions,
			Agents:      b.Agents,
			Campaigns:   b.Campaigns,
			Sources:     b.Sources,
			FollowUps:   b.FollowUps,
			RecentLeads: b.RecentLeads,
		}, nil

	case model.RoleClient:
		b := Aggregate(leads, opts)
		return &model.View{
			Role:        model.RoleClient,
			Summary:     b.Summary,
			Funnel:      b.Funnel,
			Conversions: b.Conversions,
			Campaigns:   b.Campaigns,
		}, nil

	case model.RoleAgent:
		agent := strings.TrimSpace(req.Agent)
		if agent == "" {
			return nil, invalidArgument("agent view requires an agent name")
		}
		if agent == model.UnassignedAgent {
			return nil, invalidArgument("%q is not an agent", agent)
		}
		own := FilterByAgent(leads, agent)
		if len(own) == 0 {
			return nil, invalidArgument("no leads assigned to agent %q", agent)
		}

		b := Aggregate(own, opts)
		view := &model.View{
			Role:        model.RoleAgent,
			Agent:       agent,
			Summary:     b.Summary,
			Funnel:      b.Funnel,
			Conversions: b.Conversions,
			FollowUps:   b.FollowUps,
			Leads:       own,
		}
		if req.Stage != nil {
			view.Leads = FilterByStage(own, *req.Stage)
		}
		return view, nil
	}

	return nil, invalidArgument("unknown role %q", req.Role)
}

// FilterByAgent returns the leads whose agent matches name exactly
func FilterByAgent(leads []model.Lead, name string) []model.Lead {
	var out []model.Lead
	for i := range leads {
		if leads[i].AgentAssigned == name {
			out = append(out, leads[i])
		}
	}
	return out
}

// FilterByStage returns the leads currently in stage
func FilterByStage(leads []model.Lead, stage model.Stage) []model.Lead {
	out := []model.Lead{}
	for i := range leads {
		if leads[i].Stage == stage {
			out = append(out, leads[i])
		}
	}
	return out
}

// Agents lists the distinct assigned agents of a snapshot, sorted
func Agents(snap *model.Snapshot) []string {
	if snap == nil {
		return []string{}
	}
	set := make(map[string]struct{})
	for i := range snap.Leads {
		if snap.Leads[i].IsAssigned() {
			set[snap.Leads[i].AgentAssigned] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
