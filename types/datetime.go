package types

import (
	"math"
	"time"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/errors"
)

// Datetime is a UTC instant.
type Datetime struct {
	time.Time
}

// NewDatetime converts t to UTC.
func NewDatetime(t time.Time) Datetime {
	return Datetime{t.UTC()}
}

// String renders RFC 3339 with nanoseconds.
func (d Datetime) String() string {
	return d.UTC().Format(time.RFC3339Nano)
}

// Value returns the text form.
func (d Datetime) Value() codec.Value {
	return codec.String(d.String())
}

// MarshalText implements encoding.TextMarshaler.
func (d Datetime) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Datetime) UnmarshalText(text []byte) error {
	v, err := DecodeDatetime(codec.String(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DecodeDatetime reads RFC 3339 text or unix seconds. Fractional seconds
// keep nanosecond precision.
func DecodeDatetime(v codec.Value) (Datetime, error) {
	switch v := v.(type) {
	case codec.String:
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return Datetime{}, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
				Value(string(v)).
				Detail("datetime is not RFC 3339").
				Cause(err).
				Build()
		}
		return NewDatetime(t), nil
	case codec.Int:
		return NewDatetime(time.Unix(int64(v), 0)), nil
	case codec.Uint:
		if v > math.MaxInt64 {
			return Datetime{}, errors.UnsupportedInteger(nil, uint64(v))
		}
		return NewDatetime(time.Unix(int64(v), 0)), nil
	case codec.Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
			return Datetime{}, errors.InvalidFloat(nil, f)
		}
		sec, frac := math.Modf(f)
		return NewDatetime(time.Unix(int64(sec), int64(math.Round(frac*1e9)))), nil
	}
	return Datetime{}, errors.New(errors.PhaseDecode, errors.KindUnsupportedValue).
		Value(v).
		Detail("%T is not a datetime", v).
		Build()
}
