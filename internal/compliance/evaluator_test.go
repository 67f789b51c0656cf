package compliance

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEvaluateScenarios(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name     string
		detected LabelSet
		license  bool
		overall  Overall
		reasons  []string
	}{
		{
			name:     "missing coverall",
			detected: NewLabelSet("helmet", "shoes", "glasses"),
			license:  true,
			overall:  Violation,
			reasons:  []string{"missing coverall"},
		},
		{
			name:     "optional items missing",
			detected: NewLabelSet("coverall", "helmet", "shoes", "glasses"),
			license:  true,
			overall:  Warning,
			reasons:  []string{"missing gloves", "missing face-mask"},
		},
		{
			name:     "fully compliant",
			detected: NewLabelSet("coverall", "helmet", "shoes", "glasses", "gloves", "face-mask"),
			license:  true,
			overall:  Compliant,
			reasons:  []string{"fully compliant"},
		},
		{
			name:     "license inactive beats full kit",
			detected: NewLabelSet("coverall", "helmet", "shoes", "glasses", "gloves", "face-mask"),
			license:  false,
			overall:  Violation,
			reasons:  []string{"license inactive"},
		},
		{
			name:     "nothing detected",
			detected: NewLabelSet(),
			license:  true,
			overall:  Violation,
			reasons:  []string{"missing coverall", "missing helmet", "missing shoes"},
		},
		{
			name:     "unrelated labels ignored",
			detected: NewLabelSet("coverall", "helmet", "shoes", "person", "head"),
			license:  true,
			overall:  Warning,
			reasons:  []string{"missing glasses", "missing gloves", "missing face-mask"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := rules.Evaluate(tt.detected, tt.license)
			if v.Overall != tt.overall {
				t.Errorf("overall = %q, want %q", v.Overall, tt.overall)
			}
			if !reflect.DeepEqual(v.Reasons, tt.reasons) {
				t.Errorf("reasons = %v, want %v", v.Reasons, tt.reasons)
			}
		})
	}
}

// allSubsets enumerates every subset of the rule labels.
func allSubsets(labels []string) []LabelSet {
	var out []LabelSet
	for mask := 0; mask < 1<<len(labels); mask++ {
		s := NewLabelSet()
		for i, l := range labels {
			if mask&(1<<i) != 0 {
				s[l] = struct{}{}
			}
		}
		out = append(out, s)
	}
	return out
}

func TestEvaluateNeverCompliantWithoutMandatory(t *testing.T) {
	rules := DefaultRules()
	labels := append(append([]string{}, rules.Mandatory...), rules.Optional...)

	for _, set := range allSubsets(labels) {
		v := rules.Evaluate(set, true)
		allMandatory := true
		for _, m := range rules.Mandatory {
			if !set.Has(m) {
				allMandatory = false
			}
		}
		if !allMandatory && v.Overall == Compliant {
			t.Fatalf("set %v: compliant with a mandatory item missing", set)
		}
		if !allMandatory && v.Overall != Violation {
			t.Fatalf("set %v: overall = %q, want violation", set, v.Overall)
		}
		if len(v.MissingMandatory) > 0 && len(v.Reasons) != len(v.MissingMandatory) {
			t.Fatalf("set %v: %d reasons for %d missing mandatory items", set, len(v.Reasons), len(v.MissingMandatory))
		}
	}
}

func TestEvaluateInactiveLicenseAlwaysViolation(t *testing.T) {
	rules := DefaultRules()
	labels := append(append([]string{}, rules.Mandatory...), rules.Optional...)

	for _, set := range allSubsets(labels) {
		v := rules.Evaluate(set, false)
		if v.Overall != Violation {
			t.Fatalf("set %v: overall = %q, want violation", set, v.Overall)
		}
		if len(v.Reasons) != 1 || v.Reasons[0] != ReasonLicenseInactive {
			t.Fatalf("set %v: reasons = %v", set, v.Reasons)
		}
	}
}

func TestEvaluatePresenceMaps(t *testing.T) {
	v := DefaultRules().Evaluate(NewLabelSet("helmet", "gloves"), true)

	wantMandatory := map[string]bool{"coverall": false, "helmet": true, "shoes": false}
	wantOptional := map[string]bool{"glasses": false, "gloves": true, "face-mask": false}
	if !reflect.DeepEqual(v.Mandatory, wantMandatory) {
		t.Errorf("mandatory = %v, want %v", v.Mandatory, wantMandatory)
	}
	if !reflect.DeepEqual(v.Optional, wantOptional) {
		t.Errorf("optional = %v, want %v", v.Optional, wantOptional)
	}
	if !reflect.DeepEqual(v.MissingOptional, []string{"glasses", "face-mask"}) {
		t.Errorf("missing optional = %v", v.MissingOptional)
	}
}

func TestVerdictDetails(t *testing.T) {
	v := DefaultRules().Evaluate(NewLabelSet("helmet", "shoes"), true)

	raw, err := v.Details()
	if err != nil {
		t.Fatalf("Details() error: %v", err)
	}

	var decoded struct {
		PPEUsed struct {
			Wajib    map[string]bool `json:"wajib"`
			Opsional map[string]bool `json:"opsional"`
		} `json:"ppe_used"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if decoded.PPEUsed.Wajib["coverall"] || !decoded.PPEUsed.Wajib["helmet"] {
		t.Errorf("wajib = %v", decoded.PPEUsed.Wajib)
	}
	if decoded.Description != "missing coverall" {
		t.Errorf("description = %q", decoded.Description)
	}
	if got := Description(raw); got != "missing coverall" {
		t.Errorf("Description() = %q", got)
	}
}

func TestOverallColor(t *testing.T) {
	cases := map[Overall]string{Compliant: "hijau", Warning: "orange", Violation: "merah"}
	for o, want := range cases {
		if got := o.Color(); got != want {
			t.Errorf("%s.Color() = %q, want %q", o, got, want)
		}
	}
}
