package tool

import (
	"context"
	"strings"
	"unicode"
)

// Tool names on the allow-list.
const (
	VisaTool     = "check_visa_requirements"
	PerDiemTool  = "get_per_diem_rate"
	FlightTool   = "check_flight_policy"
	ApprovalTool = "get_approval_requirements"
)

// Allowed enum values.
var (
	CabinClasses     = []string{"economy", "premium_economy", "business", "first"}
	DestinationTypes = []string{"domestic", "international", "high_risk"}
)

type visaRule struct {
	RequiresVisa   bool
	VisaType       string
	ProcessingDays int
	Notes          string
}

type countryPair struct{ passport, destination string }

var visaRules = map[countryPair]visaRule{
	{"india", "united kingdom"}:         {true, "Business", 15, "Business visa required; submit application at least 60 days before travel."},
	{"india", "united states"}:          {true, "B1/B2", 30, "B1/B2 visa required. Schedule interview at US consulate."},
	{"india", "singapore"}:              {false, "", 0, "Visa-free for up to 30 days for Indian passport holders."},
	{"united states", "united kingdom"}: {false, "", 0, "ESTA/Visa Waiver — no visa needed for stays under 90 days."},
}

type perDiemRate struct {
	City, Country string
	DailyRate     int
	Currency      string
}

// perDiemRates is ordered; a city-only lookup takes the first match.
var perDiemRates = []perDiemRate{
	{"bangalore", "india", 3500, "INR"},
	{"mumbai", "india", 4000, "INR"},
	{"new delhi", "india", 3800, "INR"},
	{"london", "united kingdom", 150, "GBP"},
	{"new york", "united states", 200, "USD"},
	{"san francisco", "united states", 220, "USD"},
	{"singapore", "singapore", 250, "SGD"},
	{"tokyo", "japan", 18000, "JPY"},
	{"dubai", "uae", 700, "AED"},
}

type flightRule struct {
	MaxCost            int
	AdvanceBookingDays int
	Refundable         bool
	RequiresApproval   string
}

var flightRules = map[string]flightRule{
	"economy":         {50000, 7, false, ""},
	"premium_economy": {80000, 14, false, ""},
	"business":        {200000, 21, true, "VP"},
	"first":           {500000, 30, true, "CXO"},
}

type approvalLimits struct {
	AutoApprove, Manager, VP float64
}

var approvalRules = map[string]approvalLimits{
	"domestic":      {25000, 100000, 500000},
	"international": {50000, 200000, 1000000},
	"high_risk":     {0, 50000, 200000},
}

// Builtin returns the four travel lookup tools.
func Builtin() []*Tool {
	return []*Tool{
		{
			Name:        VisaTool,
			Description: "Check whether a passport holder needs a visa for a destination country.",
			Source:      "visa-db-v1",
			Parameters: []Parameter{
				{Name: "passport_country", Type: "string", Description: "passport issuing country", Required: true},
				{Name: "destination_country", Type: "string", Description: "destination country", Required: true},
			},
			Decode:  decoder[VisaParams]("passport_country", "destination_country"),
			Handler: typed(CheckVisa),
		},
		{
			Name:        PerDiemTool,
			Description: "Look up the daily per-diem allowance for a city.",
			Source:      "per-diem-db-v1",
			Parameters: []Parameter{
				{Name: "city", Type: "string", Description: "city", Required: true},
				{Name: "country", Type: "string", Description: "country, omitted when unknown"},
			},
			Decode:  decoder[PerDiemParams]("city"),
			Handler: typed(PerDiem),
		},
		{
			Name:        FlightTool,
			Description: "Check the booking policy for a flight cabin class.",
			Source:      "flight-policy-v1",
			Parameters: []Parameter{
				{Name: "origin", Type: "string", Description: "origin city or airport", Required: true},
				{Name: "destination", Type: "string", Description: "destination city or airport", Required: true},
				{Name: "cabin_class", Type: "string", Description: "cabin class", Required: true, Enum: CabinClasses},
			},
			Decode:  decoder[FlightParams]("origin", "destination", "cabin_class"),
			Handler: typed(FlightPolicy),
		},
		{
			Name:        ApprovalTool,
			Description: "Determine who must approve a trip of a given cost.",
			Source:      "approval-policy-v1",
			Parameters: []Parameter{
				{Name: "trip_cost", Type: "number", Description: "total trip cost", Required: true},
				{Name: "destination_type", Type: "string", Description: "destination type", Required: true, Enum: DestinationTypes},
			},
			Decode:  decoder[ApprovalParams]("trip_cost", "destination_type"),
			Handler: typed(Approval),
		},
	}
}

// typed adapts a lookup on a concrete params type to a Tool handler.
func typed[P Params](fn func(P) map[string]any) func(context.Context, Params) (map[string]any, error) {
	return func(ctx context.Context, p Params) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(p.(P)), nil
	}
}

// CheckVisa looks up the visa rule for a passport and destination pair.
func CheckVisa(p VisaParams) map[string]any {
	rule, ok := visaRules[countryPair{strings.ToLower(p.PassportCountry), strings.ToLower(p.DestinationCountry)}]
	if !ok {
		return map[string]any{
			"requires_visa": true,
			"notes": "Couldn't find specific visa info for " + p.PassportCountry + " to " + p.DestinationCountry +
				". Suggest checking with the embassy or consulate directly.",
		}
	}
	var visaType any
	if rule.VisaType != "" {
		visaType = rule.VisaType
	}
	return map[string]any{
		"requires_visa":   rule.RequiresVisa,
		"visa_type":       visaType,
		"processing_days": rule.ProcessingDays,
		"notes":           rule.Notes,
	}
}

// PerDiem looks up the per-diem rate for a city. Without a usable country the first
// city match is returned with the inferred country.
func PerDiem(p PerDiemParams) map[string]any {
	city := strings.ToLower(p.City)
	country := ""
	if p.Country != nil && !IsPlaceholder(*p.Country) {
		country = strings.ToLower(*p.Country)
	}

	for _, r := range perDiemRates {
		if r.City != city {
			continue
		}
		if country == "" {
			data := r.data()
			data["country"] = titleCase(r.Country)
			data["inferred"] = true
			return data
		}
		if r.Country == country {
			return r.data()
		}
	}

	where := p.City
	if country != "" {
		where += ", " + *p.Country
	}
	return map[string]any{"error": "No per-diem data found for " + where + "."}
}

func (r perDiemRate) data() map[string]any {
	return map[string]any{
		"daily_rate": r.DailyRate,
		"currency":   r.Currency,
		"includes":   "meals and incidentals",
	}
}

// FlightPolicy returns the booking rules for a cabin class.
func FlightPolicy(p FlightParams) map[string]any {
	data := map[string]any{
		"origin":      p.Origin,
		"destination": p.Destination,
		"cabin_class": p.CabinClass,
	}
	rule, ok := flightRules[p.CabinClass]
	if !ok {
		data["error"] = "Unknown cabin class: " + p.CabinClass
		return data
	}
	data["max_cost"] = rule.MaxCost
	data["advance_booking_days"] = rule.AdvanceBookingDays
	data["refundable"] = rule.Refundable
	if rule.RequiresApproval != "" {
		data["requires_approval"] = rule.RequiresApproval
	}
	return data
}

// Approval maps a trip cost onto the approval chain. Limits are inclusive.
func Approval(p ApprovalParams) map[string]any {
	limits, ok := approvalRules[p.DestinationType]
	if !ok {
		return map[string]any{"error": "Unknown destination type: " + p.DestinationType}
	}

	status, approver := "cxo_approval_required", "CXO / CFO"
	switch {
	case p.TripCost <= limits.AutoApprove:
		status, approver = "auto_approved", "system"
	case p.TripCost <= limits.Manager:
		status, approver = "manager_approval_required", "direct manager"
	case p.TripCost <= limits.VP:
		status, approver = "vp_approval_required", "VP"
	}
	return map[string]any{
		"trip_cost":        p.TripCost,
		"destination_type": p.DestinationType,
		"approval_status":  status,
		"approver":         approver,
		"thresholds": map[string]any{
			"auto_approve_limit": limits.AutoApprove,
			"manager_limit":      limits.Manager,
			"vp_limit":           limits.VP,
		},
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
