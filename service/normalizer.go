package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/model"
	"github.com/xuri/excelize/v2"
)

// Column keys after header folding, see columnKey
const (
	colLeadID       = "leadid"
	colName         = "name"
	colFirstName    = "firstname"
	colLastName     = "lastname"
	colEmail        = "email"
	colPhone        = "phone"
	colLeadSource   = "leadsource"
	colCampaignName = "campaignname"
	colStage        = "currentstage"
	colAgent        = "agentassigned"
	colBudget       = "budgetrange"
	colCollected    = "datecollected"
	colLastContact  = "lastcontactdate"
	colNextFollowUp = "nextfollowup"
	colNotes        = "notes"
)

// DefaultDateLayouts are tried in order. Day-first layouts come before ISO
// because the tracker is maintained in UK format.
var DefaultDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02.01.2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Normalizer turns raw sheet rows into typed leads. It holds no state
// between calls.
type Normalizer struct {
	loc     *time.Location
	layouts []string
}

// NewNormalizer creates a normalizer parsing dates in loc with layouts.
// A nil loc means UTC and empty layouts mean DefaultDateLayouts.
func NewNormalizer(loc *time.Location, layouts []string) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	return &Normalizer{loc: loc, layouts: layouts}
}

// Normalize converts rows into leads. Malformed cells are replaced with
// defaults and reported as DataFormatErrors; they never abort the run.
func (n *Normalizer) Normalize(rows []model.Row) ([]model.Lead, []*DataFormatError) {
	leads := make([]model.Lead, 0, len(rows))
	var issues []*DataFormatError
	seen := make(map[string]bool, len(rows))

	for i, raw := range rows {
		rowNum := i + 2
		cells, blank := foldRow(raw)
		if blank {
			continue
		}

		lead := model.Lead{
			LeadID:       cells[colLeadID],
			Name:         cells[colName],
			Email:        cells[colEmail],
			Phone:        cells[colPhone],
			LeadSource:   orDefault(cells[colLeadSource], model.Unspecified),
			CampaignName: orDefault(cells[colCampaignName], model.Unspecified),
			// blank agent is the same as an explicit "Unassigned"
			AgentAssigned: orDefault(cells[colAgent], model.UnassignedAgent),
			BudgetRange:   cells[colBudget],
			Notes:         cells[colNotes],
		}
		if lead.Name == "" {
			lead.Name = strings.TrimSpace(cells[colFirstName] + " " + cells[colLastName])
		}

		if lead.LeadID == "" {
			lead.LeadID = fmt.Sprintf("row-%d", rowNum)
		}
		if seen[lead.LeadID] {
			issues = append(issues, &DataFormatError{
				Row: rowNum, Column: "Lead ID", Value: lead.LeadID,
				Reason: "duplicate lead id",
			})
			lead.LeadID = nextFreeID(seen, lead.LeadID)
		}
		seen[lead.LeadID] = true

		stageValue := cells[colStage]
		stage, ok := model.ParseStage(stageValue)
		lead.Stage = stage
		if !ok {
			reason := "unrecognized stage"
			if stageValue == "" {
				reason = "missing stage"
			}
			issues = append(issues, &DataFormatError{
				Row: rowNum, Column: "Current Stage", Value: stageValue, Reason: reason,
			})
		}

		lead.DateCollected = n.date(cells, colCollected, "Date Collected", rowNum, &issues)
		lead.LastContactDate = n.date(cells, colLastContact, "Last Contact Date", rowNum, &issues)
		lead.NextFollowUp = n.date(cells, colNextFollowUp, "Next Follow-up", rowNum, &issues)

		leads = append(leads, lead)
	}

	return leads, issues
}

func (n *Normalizer) date(cells map[string]string, key, column string, rowNum int, issues *[]*DataFormatError) *time.Time {
	value := cells[key]
	if value == "" {
		return nil
	}
	t, ok := n.ParseDate(value)
	if !ok {
		*issues = append(*issues, &DataFormatError{
			Row: rowNum, Column: column, Value: value, Reason: "unparseable date",
		})
		return nil
	}
	return &t
}

// ParseDate reads a sheet date cell. Plain numbers are spreadsheet serial
// dates.
func (n *Normalizer) ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if serial < 1 {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, n.loc), true
	}

	for _, layout := range n.layouts {
		if t, err := time.ParseInLocation(layout, value, n.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// foldRow keys cells by columnKey and trims values. When two headers fold
// to the same key the first non-blank one in sorted header order wins.
func foldRow(raw model.Row) (map[string]string, bool) {
	headers := make([]string, 0, len(raw))
	for header := range raw {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	cells := make(map[string]string, len(raw))
	blank := true
	for _, header := range headers {
		key := columnKey(header)
		value := strings.TrimSpace(raw[header])
		if value != "" {
			blank = false
		}
		if existing, ok := cells[key]; ok && existing != "" {
			continue
		}
		cells[key] = value
	}
	return cells, blank
}

// columnKey folds "Next Follow-up" and "next_follow_up" to "nextfollowup"
func columnKey(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// nextFreeID returns the first id#n (n >= 2) not already emitted
func nextFreeID(seen map[string]bool, id string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", id, n)
		if !seen[candidate] {
			return candidate
		}
	}
}
