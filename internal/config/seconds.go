package config

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Seconds is a duration written in the batch file as a number of seconds,
// fractions allowed.
type Seconds float64

// FromDuration converts d to Seconds.
func FromDuration(d time.Duration) Seconds { return Seconds(d.Seconds()) }

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

// UnmarshalJSON accepts a number, or a Go duration string such as "1m30s".
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Seconds(n)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be seconds or a duration string: %s", data)
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*s = FromDuration(d)
	return nil
}
