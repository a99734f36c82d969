package types

import "time"

// Duration is a wrapper around time.Duration that knows how to parse itself
// from the human-friendly strings used in config files and environment
// variables ("10s", "24h").
type Duration time.Duration

// AsTimeDuration returns the stdlib form.
func (d Duration) AsTimeDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
