package diffdetect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ResourceType is selecting how snapshots of a resource are compared.
type ResourceType int

const (
	// TypeGeneric resources are compared line by line.
	TypeGeneric ResourceType = iota
	// TypeRSS resources are compared item by item.
	TypeRSS
)

func (t ResourceType) String() string {
	switch t {
	case TypeRSS:
		return "RSS"
	default:
		return "generic"
	}
}

// ParseResourceType is parsing the textual representation of a ResourceType.
// An empty string is a generic resource.
func ParseResourceType(s string) (ResourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "generic":
		return TypeGeneric, nil
	case "rss":
		return TypeRSS, nil
	}
	return TypeGeneric, fmt.Errorf("unknown resource type %q: %w", s, ErrConfig)
}

func (t ResourceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ResourceType) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Resource is a monitored endpoint and the configuration needed to fetch it.
type Resource struct {
	ID               int64        `json:"id"`
	Name             string       `json:"name"`
	URL              string       `json:"url"`
	Categories       string       `json:"categories"`
	Enabled          bool         `json:"enabled"`
	HTTPAuthLogin    string       `json:"http_auth_login"`
	HTTPAuthPassword string       `json:"http_auth_password,omitempty"`
	Type             ResourceType `json:"type"`
	IntervalID       int64        `json:"interval_id"`
	LastScan         time.Time    `json:"last_scan"`
}

// Validate is checking that the resource can be fetched.
func (r *Resource) Validate() error {
	if r.ID < 0 {
		return fmt.Errorf("id has to be positive, got %d: %w", r.ID, ErrConfig)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("resource %d has no url: %w", r.ID, ErrConfig)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("resource %d: %v: %w", r.ID, err, ErrConfig)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("resource %d: unsupported url scheme %q: %w", r.ID, u.Scheme, ErrConfig)
	}
	if u.Host == "" {
		return fmt.Errorf("resource %d: url %s has no host: %w", r.ID, r.URL, ErrConfig)
	}
	if r.Type != TypeGeneric && r.Type != TypeRSS {
		return fmt.Errorf("resource %d: unknown type %d: %w", r.ID, r.Type, ErrConfig)
	}
	return nil
}

// BasicAuth returns the credentials for HTTP basic authentication.
// ok is only true if both login and password are set.
func (r *Resource) BasicAuth() (login, password string, ok bool) {
	if r.HTTPAuthLogin == "" || r.HTTPAuthPassword == "" {
		return "", "", false
	}
	return r.HTTPAuthLogin, r.HTTPAuthPassword, true
}

// Due reports whether the resource should be fetched at now, given its polling period.
// Resources which were never scanned are always due.
func (r *Resource) Due(now time.Time, period time.Duration) bool {
	if r.LastScan.IsZero() {
		return true
	}
	return !now.Before(r.LastScan.Add(period))
}

// Interval is a named polling period.
type Interval struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Period time.Duration `json:"period"`
}

type intervalJSON struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Period string `json:"period"`
}

// MarshalJSON is encoding the period as duration string like "1h30m".
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{ID: iv.ID, Name: iv.Name, Period: iv.Period.String()})
}

func (iv *Interval) UnmarshalJSON(data []byte) error {
	var v intervalJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	period, err := time.ParseDuration(v.Period)
	if err != nil {
		return fmt.Errorf("interval %s: %v: %w", v.Name, err, ErrConfig)
	}

	*iv = Interval{ID: v.ID, Name: v.Name, Period: period}
	return nil
}
