package service

import (
	"math"
	"sort"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
)

// DefaultRecentLimit matches the "Recent Leads" table of the admin page
const DefaultRecentLimit = 10

// AggregateOptions parameterizes the time-dependent parts of Aggregate.
// Zero FollowUpFrom/FollowUpTo mean "today" in Location.
type AggregateOptions struct {
	Now          time.Time
	Location     *time.Location
	FollowUpFrom time.Time
	FollowUpTo   time.Time
	RecentLimit  int
}

// DateLayout is the format of follow-up window bounds
const DateLayout = "2006-01-02"

// ParseFollowUpWindow reads optional from/to days (DateLayout) in loc.
// A lone from covers that day, a lone to runs from the start of today, and
// two empty bounds return zero times (today). to before from is an error.
func ParseFollowUpWindow(from, to string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.ParseInLocation(DateLayout, from, loc); err != nil {
			return start, end, invalidArgument("from must be YYYY-MM-DD")
		}
	}
	if to != "" {
		if end, err = time.ParseInLocation(DateLayout, to, loc); err != nil {
			return start, end, invalidArgument("to must be YYYY-MM-DD")
		}
	}
	if end.IsZero() && !start.IsZero() {
		end = start
	}
	if start.IsZero() && !end.IsZero() {
		start = day(now, loc)
	}
	if !start.IsZero() && end.Before(start) {
		return start, end, invalidArgument("to is before from")
	}
	return start, end, nil
}

func (o AggregateOptions) withDefaults() AggregateOptions {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.FollowUpFrom.IsZero() {
		o.FollowUpFrom = o.Now
	}
	if o.FollowUpTo.IsZero() {
		o.FollowUpTo = o.FollowUpFrom
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	return o
}

// Aggregate computes every dashboard metric over leads. It is pure: no I/O
// and the input slice is not modified. Empty input yields zeroed aggregates.
func Aggregate(leads []model.Lead, opts AggregateOptions) *model.Bundle {
	opts = opts.withDefaults()

	funnel := BuildFunnel(leads)
	return &model.Bundle{
		Summary:     Summarize(leads),
		Funnel:      funnel,
		Conversions: Conversions(funnel),
		Agents: Leaderboard(RollupBy(leads, func(l *model.Lead) (string, bool) {
			return l.AgentAssigned, l.IsAssigned()
		})),
		Campaigns: RollupBy(leads, func(l *model.Lead) (string, bool) {
			return l.CampaignName, true
		}),
		Sources: RollupBy(leads, func(l *model.Lead) (string, bool) {
			return l.LeadSource, true
		}),
		FollowUps:   FollowUps(leads, opts.FollowUpFrom, opts.FollowUpTo, opts.Location),
		RecentLeads: RecentLeads(leads, opts.RecentLimit),
	}
}

// BuildFunnel counts leads per stage in enum order, Lost and Unknown last.
// Reached counts leads at or past a linear stage; every lead counts as
// having reached Lead Collected.
func BuildFunnel(leads []model.Lead) model.Funnel {
	counts := make(map[model.Stage]int)
	for i := range leads {
		counts[leads[i].Stage]++
	}

	linear := model.LinearStages()
	reached := make([]int, len(linear))
	running := 0
	for i := len(linear) - 1; i >= 0; i-- {
		running += counts[linear[i]]
		reached[i] = running
	}
	reached[0] = len(leads)

	funnel := model.Funnel{Total: len(leads)}
	for i, s := range linear {
		funnel.Stages = append(funnel.Stages, model.StageCount{
			Stage:          s,
			Count:          counts[s],
			Reached:        reached[i],
			CumulativeRate: percent(reached[i], reached[0]),
		})
	}
	funnel.Stages = append(funnel.Stages,
		model.StageCount{Stage: model.StageLost, Count: counts[model.StageLost]},
		model.StageCount{Stage: model.StageUnknown, Count: counts[model.StageUnknown]},
	)
	return funnel
}

// Conversions derives the adjacent-stage rates from a funnel. A zero
// denominator yields Rate 0 with Defined=false.
func Conversions(funnel model.Funnel) []model.Conversion {
	var linear []model.StageCount
	for _, sc := range funnel.Stages {
		if sc.Stage.IsLinear() {
			linear = append(linear, sc)
		}
	}

	conversions := make([]model.Conversion, 0, len(linear))
	for i := 0; i+1 < len(linear); i++ {
		c := model.Conversion{From: linear[i].Stage, To: linear[i+1].Stage}
		if linear[i].Reached > 0 {
			c.Rate = percent(linear[i+1].Reached, linear[i].Reached)
			c.Defined = true
		}
		conversions = append(conversions, c)
	}
	return conversions
}

// Summarize computes the headline metrics
func Summarize(leads []model.Lead) model.Summary {
	var s model.Summary
	s.TotalLeads = len(leads)
	for i := range leads {
		switch stage := leads[i].Stage; {
		case stage == model.StageContractSigned:
			s.Won++
			s.Qualified++
		case stage == model.StageLost:
			s.Lost++
		case stage.IsQualified():
			s.Qualified++
		}
	}
	s.Active = s.TotalLeads - s.Won - s.Lost
	s.QualRate = percent(s.Qualified, s.TotalLeads)
	s.WinRate = percent(s.Won, s.TotalLeads)
	return s
}

// RollupBy groups leads by the key returned from keyFn, skipping leads for
// which keyFn reports false. Rollups are ordered by Total desc, then key.
func RollupBy(leads []model.Lead, keyFn func(*model.Lead) (string, bool)) []model.Rollup {
	groups := make(map[string]*model.Rollup)
	var order []string

	for i := range leads {
		key, ok := keyFn(&leads[i])
		if !ok {
			continue
		}
		r, exists := groups[key]
		if !exists {
			r = &model.Rollup{Key: key, Stages: make(map[model.Stage]int)}
			for _, s := range model.AllStages() {
				r.Stages[s] = 0
			}
			groups[key] = r
			order = append(order, key)
		}
		stage := leads[i].Stage
		r.Total++
		r.Stages[stage]++
		if stage.IsQualified() {
			r.Qualified++
		}
		if stage == model.StageContractSigned {
			r.Won++
		}
	}

	rollups := make([]model.Rollup, 0, len(order))
	for _, key := range order {
		r := groups[key]
		r.QualRate = percent(r.Qualified, r.Total)
		r.WinRate = percent(r.Won, r.Total)
		rollups = append(rollups, *r)
	}
	sort.Slice(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Key < b.Key
	})
	return rollups
}

// Leaderboard reorders rollups by contracts won, keeping the RollupBy
// order among equals
func Leaderboard(rollups []model.Rollup) []model.Rollup {
	sort.SliceStable(rollups, func(i, j int) bool {
		return rollups[i].Won > rollups[j].Won
	})
	return rollups
}

// FollowUps lists leads whose next follow-up falls on a calendar day in
// [from, to] (inclusive, evaluated in loc), by day then lead ID.
func FollowUps(leads []model.Lead, from, to time.Time, loc *time.Location) []model.FollowUp {
	if loc == nil {
		loc = time.UTC
	}
	start, end := day(from, loc), day(to, loc)

	result := []model.FollowUp{}
	for i := range leads {
		l := &leads[i]
		if l.NextFollowUp == nil {
			continue
		}
		d := day(*l.NextFollowUp, loc)
		if d.Before(start) || d.After(end) {
			continue
		}
		result = append(result, model.FollowUp{
			LeadID:        l.LeadID,
			Name:          l.Name,
			Phone:         l.Phone,
			Email:         l.Email,
			Stage:         l.Stage,
			AgentAssigned: l.AgentAssigned,
			BudgetRange:   l.BudgetRange,
			NextFollowUp:  *l.NextFollowUp,
			Notes:         l.Notes,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		di, dj := day(result[i].NextFollowUp, loc), day(result[j].NextFollowUp, loc)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return result[i].LeadID < result[j].LeadID
	})
	return result
}

// RecentLeads returns up to limit leads by collection date, newest first.
// Leads without a date sort last.
func RecentLeads(leads []model.Lead, limit int) []model.Lead {
	sorted := make([]model.Lead, len(leads))
	copy(sorted, leads)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].DateCollected, sorted[j].DateCollected
		switch {
		case a == nil && b == nil:
			return sorted[i].LeadID < sorted[j].LeadID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return sorted[i].LeadID < sorted[j].LeadID
	})
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// percent returns num/den as a percentage rounded to one decimal, 0 when
// den is zero
func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}
