package model

import (
	"strings"
)

// Stage is a position in the sales funnel
type Stage int

const (
	StageLeadCollected Stage = iota
	StageContactAttempted
	StageContactMade
	StageQualifiedLead
	StageDiscoveryPresentation
	StageOpportunity
	StageNegotiation
	StageContractSigned
	// StageLost is terminal and sits outside the linear order
	StageLost
	// StageUnknown holds sheet values that match no known stage
	StageUnknown
)

var stageNames = [...]string{
	StageLeadCollected:         "Lead Collected",
	StageContactAttempted:      "Contact Attempted",
	StageContactMade:           "Contact Made",
	StageQualifiedLead:         "Qualified Lead",
	StageDiscoveryPresentation: "Discovery/Presentation",
	StageOpportunity:           "Opportunity",
	StageNegotiation:           "Negotiation",
	StageContractSigned:        "Contract Signed",
	StageLost:                  "Lost",
	StageUnknown:               "Unknown",
}

// LinearStages returns the funnel stages in progression order
func LinearStages() []Stage {
	return []Stage{
		StageLeadCollected,
		StageContactAttempted,
		StageContactMade,
		StageQualifiedLead,
		StageDiscoveryPresentation,
		StageOpportunity,
		StageNegotiation,
		StageContractSigned,
	}
}

// AllStages returns every bucket a lead can occupy, linear stages first
func AllStages() []Stage {
	return append(LinearStages(), StageLost, StageUnknown)
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return stageNames[StageUnknown]
	}
	return stageNames[s]
}

// IsLinear reports whether the stage is part of the ordered funnel
func (s Stage) IsLinear() bool {
	return s >= StageLeadCollected && s <= StageContractSigned
}

// IsQualified reports whether the lead reached Qualified Lead or later
func (s Stage) IsQualified() bool {
	return s >= StageQualifiedLead && s <= StageContractSigned
}

// ParseStage matches a sheet value against the known stages, ignoring case
// and whitespace. Anything else maps to StageUnknown with ok=false.
func ParseStage(value string) (stage Stage, ok bool) {
	key := stageKey(value)
	if key == "" {
		return StageUnknown, false
	}
	for i, name := range stageNames {
		if Stage(i) == StageUnknown {
			continue
		}
		if stageKey(name) == key {
			return Stage(i), true
		}
	}
	return StageUnknown, false
}

func stageKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '-', '_', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MarshalText encodes the stage as its display name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts a display name; unknown names decode to StageUnknown
func (s *Stage) UnmarshalText(text []byte) error {
	*s, _ = ParseStage(string(text))
	return nil
}
