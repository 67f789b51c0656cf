// Package compliance maps the PPE items seen in a frame and a worker's
// licence state to a compliance verdict.
//
// Detection is frame-global: items are not spatially associated with a
// person, so every identity matched in the same frame is evaluated against
// the same detected-item set. This is a known simplification of the verdict
// computation.
package compliance

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Overall is the verdict severity.
type Overall string

const (
	Compliant Overall = "compliant"
	Warning   Overall = "warning"
	Violation Overall = "violation"
)

// Color returns the status colour used by the gate dashboard.
func (o Overall) Color() string {
	switch o {
	case Compliant:
		return "hijau"
	case Warning:
		return "orange"
	default:
		return "merah"
	}
}

const (
	ReasonLicenseInactive = "license inactive"
	ReasonFullyCompliant  = "fully compliant"
)

// Rules is the PPE rule set. Item order is the order reasons are reported in.
type Rules struct {
	Mandatory []string
	Optional  []string
}

// DefaultRules returns the gate's standard rule set.
func DefaultRules() Rules {
	return Rules{
		Mandatory: []string{"coverall", "helmet", "shoes"},
		Optional:  []string{"glasses", "gloves", "face-mask"},
	}
}

// LabelSet is the set of item labels detected in one frame.
type LabelSet map[string]struct{}

func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Verdict is the compliance outcome for one identity in one frame.
type Verdict struct {
	Overall          Overall
	Mandatory        map[string]bool
	Optional         map[string]bool
	MissingMandatory []string
	MissingOptional  []string
	Reasons          []string
}

// Evaluate applies the rules in severity order; the first matching rule wins.
func (r Rules) Evaluate(detected LabelSet, licenseActive bool) Verdict {
	v := Verdict{
		Mandatory: make(map[string]bool, len(r.Mandatory)),
		Optional:  make(map[string]bool, len(r.Optional)),
	}
	for _, item := range r.Mandatory {
		present := detected.Has(item)
		v.Mandatory[item] = present
		if !present {
			v.MissingMandatory = append(v.MissingMandatory, item)
		}
	}
	for _, item := range r.Optional {
		present := detected.Has(item)
		v.Optional[item] = present
		if !present {
			v.MissingOptional = append(v.MissingOptional, item)
		}
	}

	switch {
	case !licenseActive:
		v.Overall = Violation
		v.Reasons = []string{ReasonLicenseInactive}
	case len(v.MissingMandatory) > 0:
		v.Overall = Violation
		v.Reasons = missingReasons(v.MissingMandatory)
	case len(v.MissingOptional) > 0:
		v.Overall = Warning
		v.Reasons = missingReasons(v.MissingOptional)
	default:
		v.Overall = Compliant
		v.Reasons = []string{ReasonFullyCompliant}
	}
	return v
}

func missingReasons(items []string) []string {
	reasons := make([]string, len(items))
	for i, item := range items {
		reasons[i] = "missing " + item
	}
	return reasons
}

type ppeUsed struct {
	Wajib    map[string]bool `json:"wajib"`
	Opsional map[string]bool `json:"opsional"`
}

type details struct {
	PPEUsed     ppeUsed `json:"ppe_used"`
	Description string  `json:"description"`
}

// Details renders the verdict in the gate log details format.
func (v Verdict) Details() (json.RawMessage, error) {
	data, err := json.Marshal(details{
		PPEUsed:     ppeUsed{Wajib: v.Mandatory, Opsional: v.Optional},
		Description: strings.Join(v.Reasons, "; "),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal verdict details: %w", err)
	}
	return data, nil
}

// Description extracts the joined reason text from stored details.
func Description(raw json.RawMessage) string {
	var d details
	if err := json.Unmarshal(raw, &d); err != nil {
		return ""
	}
	return d.Description
}
