package tool

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sweetpotato0/travel-router/errors"
)

// Params is the validated parameter set of one tool.
type Params interface {
	// ToolName names the tool the params belong to.
	ToolName() string
	// Validate returns every constraint violation, or nil.
	Validate() []string
}

// VisaParams are the arguments of check_visa_requirements.
type VisaParams struct {
	PassportCountry    string `json:"passport_country" jsonschema:"country that issued the traveller's passport"`
	DestinationCountry string `json:"destination_country" jsonschema:"country the traveller is visiting"`
}

func (VisaParams) ToolName() string { return VisaTool }

func (p VisaParams) Validate() []string {
	var v []string
	v = checkLen(v, "passport_country", p.PassportCountry, 2, 56)
	v = checkLen(v, "destination_country", p.DestinationCountry, 2, 56)
	return v
}

// PerDiemParams are the arguments of get_per_diem_rate.
type PerDiemParams struct {
	City    string  `json:"city" jsonschema:"city of the trip"`
	Country *string `json:"country,omitempty" jsonschema:"country of the city, omit when unknown"`
}

func (PerDiemParams) ToolName() string { return PerDiemTool }

func (p PerDiemParams) Validate() []string {
	v := checkLen(nil, "city", p.City, 1, 100)
	if p.Country != nil {
		v = checkLen(v, "country", *p.Country, 2, 56)
	}
	return v
}

// normalize drops placeholder countries such as "N/A" so they count as absent.
func (p *PerDiemParams) normalize() {
	if p.Country != nil && IsPlaceholder(*p.Country) {
		p.Country = nil
	}
}

// FlightParams are the arguments of check_flight_policy.
type FlightParams struct {
	Origin      string `json:"origin" jsonschema:"departure city or airport"`
	Destination string `json:"destination" jsonschema:"arrival city or airport"`
	CabinClass  string `json:"cabin_class" jsonschema:"one of economy, premium_economy, business, first"`
}

func (FlightParams) ToolName() string { return FlightTool }

func (p FlightParams) Validate() []string {
	var v []string
	v = checkLen(v, "origin", p.Origin, 3, 100)
	v = checkLen(v, "destination", p.Destination, 3, 100)
	return checkEnum(v, "cabin_class", p.CabinClass, CabinClasses)
}

// ApprovalParams are the arguments of get_approval_requirements.
type ApprovalParams struct {
	TripCost        float64 `json:"trip_cost" jsonschema:"estimated total trip cost"`
	DestinationType string  `json:"destination_type" jsonschema:"one of domestic, international, high_risk"`
}

func (ApprovalParams) ToolName() string { return ApprovalTool }

func (p ApprovalParams) Validate() []string {
	var v []string
	if !(p.TripCost > 0) {
		v = append(v, "trip_cost: must be greater than 0")
	}
	return checkEnum(v, "destination_type", p.DestinationType, DestinationTypes)
}

// ValidationError lists the parameter violations for a tool.
type ValidationError struct {
	Tool       string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid parameters for %s: %s", e.Tool, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return errors.ErrInvalidInput }

var placeholders = []string{"", "<unknown>", "unknown", "none", "n/a", "null", "-", "?", "unspecified", "not specified"}

// IsPlaceholder reports whether s is a stand-in for a missing value.
func IsPlaceholder(s string) bool {
	return slices.Contains(placeholders, strings.ToLower(strings.TrimSpace(s)))
}

// decoder builds a Decode func for the params type P. Required keys must be present.
func decoder[P Params](required ...string) func(map[string]string) (Params, error) {
	return func(args map[string]string) (Params, error) {
		var p P
		var violations []string
		for _, key := range required {
			if _, ok := args[key]; !ok {
				violations = append(violations, key+": field required")
			}
		}

		in := make(map[string]any, len(args))
		for k, v := range args {
			in[k] = v
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &p,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(in); err != nil {
			violations = append(violations, err.Error())
		}

		if len(violations) > 0 {
			return nil, &ValidationError{Tool: p.ToolName(), Violations: violations}
		}
		checked, err := Check(p)
		if err != nil {
			return nil, err
		}
		return checked, nil
	}
}

// Check normalizes p and validates it.
func Check[P Params](p P) (P, error) {
	if n, ok := any(&p).(interface{ normalize() }); ok {
		n.normalize()
	}
	if v := p.Validate(); len(v) > 0 {
		return p, &ValidationError{Tool: p.ToolName(), Violations: v}
	}
	return p, nil
}

func checkLen(v []string, field, value string, min, max int) []string {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min:
		return append(v, fmt.Sprintf("%s: should have at least %d characters", field, min))
	case n > max:
		return append(v, fmt.Sprintf("%s: should have at most %d characters", field, max))
	}
	return v
}

func checkEnum(v []string, field, value string, allowed []string) []string {
	if slices.Contains(allowed, value) {
		return v
	}
	return append(v, fmt.Sprintf("%s: must be one of %s, got %q", field, strings.Join(allowed, ", "), value))
}
