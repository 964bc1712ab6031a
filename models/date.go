package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar day with no time-of-day component. The zero value means "no date"
// and is stored as NULL.
type Date struct {
	civil.Date
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	return Date{civil.DateOf(t.UTC())}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Date{}, err
	}
	return Date{d}, nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d.Date == civil.Date{}
}

// DaysSince returns the number of calendar days from s to d.
func (d Date) DaysSince(s Date) int {
	return d.Date.DaysSince(s.Date)
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return Date{d.Date.AddDays(n)}
}

// String returns YYYY-MM-DD, or "" for the zero value.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Date.String()
}

// GormDataType maps Date to a DATE column.
func (Date) GormDataType() string {
	return "date"
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Date.String(), nil
}

// Scan implements sql.Scanner for DATE columns read with or without parseTime.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		// DATE columns come back as midnight in the connection location.
		*d = Date{civil.DateOf(v)}
		return nil
	case []byte:
		return d.parseColumn(string(v))
	case string:
		return d.parseColumn(v)
	default:
		return fmt.Errorf("models.Date: cannot scan %T", src)
	}
}

func (d *Date) parseColumn(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	if s == "" || s == "0000-00-00" {
		*d = Date{}
		return nil
	}
	parsed, err := civil.ParseDate(s)
	if err != nil {
		return err
	}
	*d = Date{parsed}
	return nil
}

// MarshalJSON encodes the zero value as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Date.String())
}

// UnmarshalJSON accepts null or a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
