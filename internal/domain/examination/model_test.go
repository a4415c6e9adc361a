package examination

import (
	"encoding/json"
	"math"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestMeasure_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		valid   bool
		value   float64
		invalid bool
	}{
		{`3.5`, true, 3.5, false},
		{`"3,5"`, true, 3.5, false},
		{`" 42 "`, true, 42, false},
		{`""`, false, 0, false},
		{`null`, false, 0, false},
		{`"abc"`, false, 0, true},
		{`"NaN"`, false, 0, true},
		{`"Infinity"`, false, 0, true},
		{`"-Inf"`, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var m Measure
			if err := json.Unmarshal([]byte(tt.in), &m); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Valid != tt.valid || m.Float64 != tt.value || m.invalid != tt.invalid {
				t.Errorf("got %+v", m)
			}
		})
	}
}

func TestMeasure_ValidateNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := NewMeasure(v).Validate(); err != errNotANumber {
			t.Errorf("%v: expected %q, got %v", v, errNotANumber, err)
		}
	}
	if err := NewMeasure(1e308).Validate(); err != nil {
		t.Errorf("large finite value should pass, got %v", err)
	}
}

func TestMeasure_MarshalJSON(t *testing.T) {
	b, _ := json.Marshal(struct {
		A Measure `json:"a"`
		B Measure `json:"b"`
	}{A: NewMeasure(1.5)})
	if string(b) != `{"a":1.5,"b":null}` {
		t.Errorf("unexpected json %s", b)
	}
}

func TestSegmentStates_UnmarshalJSON(t *testing.T) {
	var s SegmentStates
	if err := json.Unmarshal([]byte(`[0, 1, 2]`), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State(2) != SegmentHypokinesis || s.State(3) != SegmentAkinesis || s.State(17) != SegmentNormal {
		t.Errorf("unexpected states %v", s)
	}

	if err := json.Unmarshal([]byte(`{"17": 3, "4": 1}`), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State(17) != SegmentDyskinesis || s.State(4) != SegmentHypokinesis || s.State(2) != SegmentNormal {
		t.Errorf("object form not applied: %v", s)
	}
	if got := s.Abnormal(); len(got) != 2 || got[0] != 4 || got[1] != 17 {
		t.Errorf("unexpected abnormal segments %v", got)
	}

	if err := json.Unmarshal([]byte(`{"18": 1}`), &s); err == nil {
		t.Error("expected error for segment 18")
	}
	if err := json.Unmarshal(make18(), &s); err == nil {
		t.Error("expected error for 18 values")
	}
}

func make18() []byte {
	b, _ := json.Marshal(make([]int, 18))
	return b
}

func TestSegmentState_String(t *testing.T) {
	if SegmentAkinesis.String() != "Akinesis" || SegmentState(9).String() != "Unknown" {
		t.Error("unexpected state names")
	}
}

func validInput() CreateInput {
	in := NewCreateInput()
	in.FullName = "Ivanova Anna"
	return in
}

func TestCreateInput_Validate(t *testing.T) {
	if err := validInput().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := validInput()
	in.FullName = ""
	in.AorticValve.Regurgitation = 5
	in.Segments[16] = 4
	if err := json.Unmarshal([]byte(`"x"`), &in.Height); err != nil {
		t.Fatal(err)
	}

	err := in.Validate()
	errs, ok := err.(validation.Errors)
	if !ok {
		t.Fatalf("expected validation.Errors, got %T %v", err, err)
	}
	for _, key := range []string{"full_name", "height", "aortic_valve", "segments"} {
		if _, ok := errs[key]; !ok {
			t.Errorf("expected error for %s, got %v", key, errs)
		}
	}
	nested, ok := errs["segments"].(validation.Errors)
	if !ok || nested["17"] == nil {
		t.Errorf("expected segment 17 error, got %v", errs["segments"])
	}
}

func TestCreateInput_DefaultsKeepPanelsEnabled(t *testing.T) {
	in := NewCreateInput()
	body := `{"full_name":"A","aorta":{"diameter":"3,1"},"mitral_valve":{"is_enabled":false}}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatal(err)
	}
	if !in.Aorta.Enabled || in.Aorta.Diameter.Float64 != 3.1 {
		t.Errorf("aorta should stay enabled with diameter 3.1, got %+v", in.Aorta)
	}
	if in.MitralValve.Enabled {
		t.Error("mitral valve should be disabled")
	}
	if !in.PulmonaryArtery.Enabled {
		t.Error("omitted panel should be enabled")
	}
}
