package examination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SegmentCount is the number of myocardial segments in the 17-segment model.
const SegmentCount = 17

// SegmentState is the wall motion of one segment.
type SegmentState int

const (
	SegmentNormal SegmentState = iota
	SegmentHypokinesis
	SegmentAkinesis
	SegmentDyskinesis
)

var segmentStateNames = [...]string{"Normal", "Hypokinesis", "Akinesis", "Dyskinesis"}

func (s SegmentState) String() string {
	if s < 0 || int(s) >= len(segmentStateNames) {
		return "Unknown"
	}
	return segmentStateNames[s]
}

func (s SegmentState) valid() bool {
	return s >= SegmentNormal && s <= SegmentDyskinesis
}

// SegmentStates holds the state of segments 1..17 at index 0..16.
// JSON input is either an array of up to 17 states or an object keyed by
// segment number; missing segments are normal.
type SegmentStates [SegmentCount]SegmentState

func (s *SegmentStates) UnmarshalJSON(data []byte) error {
	*s = SegmentStates{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '[' {
		var list []SegmentState
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > SegmentCount {
			return fmt.Errorf("segments: at most %d values, got %d", SegmentCount, len(list))
		}
		copy(s[:], list)
		return nil
	}

	var byNumber map[string]SegmentState
	if err := json.Unmarshal(data, &byNumber); err != nil {
		return err
	}
	for key, state := range byNumber {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > SegmentCount {
			return fmt.Errorf("segments: unknown segment %q", key)
		}
		s[n-1] = state
	}
	return nil
}

// Validate reports each out-of-range state under its segment number.
func (s SegmentStates) Validate() error {
	errs := validation.Errors{}
	for i, st := range s {
		if !st.valid() {
			errs[strconv.Itoa(i+1)] = fmt.Errorf("must be between 0 and 3")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Abnormal returns the numbers of segments that are not normal.
func (s SegmentStates) Abnormal() []int {
	var out []int
	for i, st := range s {
		if st != SegmentNormal {
			out = append(out, i+1)
		}
	}
	return out
}

// State returns the state of segment n (1-based).
func (s SegmentStates) State(n int) SegmentState {
	if n < 1 || n > SegmentCount {
		return SegmentNormal
	}
	return s[n-1]
}
