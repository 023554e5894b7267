// Package config is loading a YAML seed file with the intervals and
// resources to create on startup.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"
)

// Seed is the content of a seed file.
type Seed struct {
	Intervals []IntervalConfig `yaml:"intervals"`
	Resources []ResourceConfig `yaml:"resources"`
}

type IntervalConfig struct {
	Name   string        `yaml:"name"`
	Period time.Duration `yaml:"period"`
}

// ResourceConfig is a resource referencing its interval by name.
type ResourceConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Categories string `yaml:"categories"`
	// Enabled defaults to true.
	Enabled  *bool  `yaml:"enabled"`
	Type     string `yaml:"type"`
	Interval string `yaml:"interval"`
	Login    string `yaml:"http_auth_login"`
	Password string `yaml:"http_auth_password"`
}

// Load is reading the seed file at path.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	seed, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seed, nil
}

// Parse is decoding a seed. Unknown keys are rejected.
func Parse(r io.Reader) (*Seed, error) {
	seed := &Seed{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", diffdetect.ErrConfig, err)
	}

	if err := seed.validate(); err != nil {
		return nil, err
	}
	return seed, nil
}

func (s *Seed) validate() error {
	names := map[string]bool{}
	for _, iv := range s.Intervals {
		if iv.Name == "" {
			return fmt.Errorf("%w: interval without name", diffdetect.ErrConfig)
		}
		if iv.Period <= 0 {
			return fmt.Errorf("%w: interval %s: period has to be positive", diffdetect.ErrConfig, iv.Name)
		}
		if names[iv.Name] {
			return fmt.Errorf("%w: interval %s defined twice", diffdetect.ErrConfig, iv.Name)
		}
		names[iv.Name] = true
	}

	for _, rc := range s.Resources {
		if _, err := rc.resource(0); err != nil {
			return err
		}
	}
	return nil
}

// resource is converting rc into a resource with the given interval.
func (rc ResourceConfig) resource(intervalID int64) (*diffdetect.Resource, error) {
	typ, err := diffdetect.ParseResourceType(rc.Type)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", rc.URL, err)
	}

	r := &diffdetect.Resource{
		Name:             rc.Name,
		URL:              rc.URL,
		Categories:       rc.Categories,
		Enabled:          rc.Enabled == nil || *rc.Enabled,
		HTTPAuthLogin:    rc.Login,
		HTTPAuthPassword: rc.Password,
		Type:             typ,
		IntervalID:       intervalID,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Service is creating intervals and resources.
type Service interface {
	AddInterval(ctx context.Context, iv *diffdetect.Interval) (*diffdetect.Interval, error)
	ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error)
	AddResource(ctx context.Context, r *diffdetect.Resource) (*diffdetect.Resource, error)
}

// Stats is counting the entries created by Apply.
type Stats struct {
	Intervals int
	Resources int
	Skipped   int
}

// Apply is creating the intervals and resources of the seed. Entries which
// already exist (same interval name or resource url) are skipped, so a seed
// can be applied on every start.
func (s *Seed) Apply(ctx context.Context, svc Service, logger *slog.Logger) (Stats, error) {
	stats := Stats{}

	for _, ic := range s.Intervals {
		_, err := svc.AddInterval(ctx, &diffdetect.Interval{Name: ic.Name, Period: ic.Period})
		switch {
		case err == nil:
			stats.Intervals++
		case errors.Is(err, diffdetect.ErrAlreadyExists):
			stats.Skipped++
			logger.Debug("seed: interval exists", slog.String("name", ic.Name))
		default:
			return stats, fmt.Errorf("interval %s: %w", ic.Name, err)
		}
	}

	intervals, err := svc.ListIntervals(ctx)
	if err != nil {
		return stats, fmt.Errorf("Service.ListIntervals() - %w", err)
	}
	byName := make(map[string]int64, len(intervals))
	for _, iv := range intervals {
		byName[iv.Name] = iv.ID
	}

	for _, rc := range s.Resources {
		var intervalID int64
		if rc.Interval != "" {
			id, ok := byName[rc.Interval]
			if !ok {
				return stats, fmt.Errorf("%w: resource %s: unknown interval %s", diffdetect.ErrConfig, rc.URL, rc.Interval)
			}
			intervalID = id
		}

		r, err := rc.resource(intervalID)
		if err != nil {
			return stats, err
		}

		_, err = svc.AddResource(ctx, r)
		switch {
		case err == nil:
			stats.Resources++
		case errors.Is(err, diffdetect.ErrAlreadyExists):
			stats.Skipped++
			logger.Debug("seed: resource exists", slog.String("url", rc.URL))
		default:
			return stats, fmt.Errorf("resource %s: %w", rc.URL, err)
		}
	}

	logger.Info("seed applied", slog.Int("intervals", stats.Intervals), slog.Int("resources", stats.Resources),
		slog.Int("skipped", stats.Skipped))

	return stats, nil
}
