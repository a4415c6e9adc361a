package examination

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"gopkg.in/guregu/null.v3"
)

var errNotANumber = errors.New("must be a number")

// Measure is a nullable measurement. In JSON it accepts a number, null, or a
// string that may use a decimal comma ("3,5"). A string that is not a number
// is kept as invalid and reported by Validate.
type Measure struct {
	null.Float
	invalid bool
}

// NewMeasure returns a set measurement.
func NewMeasure(v float64) Measure {
	return Measure{Float: null.FloatFrom(v)}
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	m.invalid = false
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return m.Float.UnmarshalJSON(data)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	if s == "" {
		m.Float = null.Float{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		m.Float = null.Float{}
		m.invalid = true
		return nil
	}
	m.Float = null.FloatFrom(v)
	return nil
}

// Validate rejects unparsable, non-finite and negative values.
func (m Measure) Validate() error {
	if m.invalid {
		return errNotANumber
	}
	if m.Valid && (math.IsNaN(m.Float64) || math.IsInf(m.Float64, 0)) {
		return errNotANumber
	}
	if m.Valid && m.Float64 < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// Usable returns the value when it is present and not zero.
func (m Measure) Usable() (float64, bool) {
	if !m.Valid || m.Float64 == 0 {
		return 0, false
	}
	return m.Float64, true
}
