// Package jobs loads the job registry from a YAML file and keeps it in sync.
package jobs

import (
	"errors"
	"fmt"
	"os"

	"worktrack/internal/store"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of the jobs file.
type File struct {
	Jobs []store.Job `yaml:"jobs"`
}

// LoadFile reads and validates the jobs file at path.
func LoadFile(path string) ([]store.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a jobs document.
func Parse(data []byte) ([]store.Job, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	if err := Validate(f.Jobs); err != nil {
		return nil, err
	}
	return f.Jobs, nil
}

// Validate checks ids, coordinates and delays.
func Validate(jobs []store.Job) error {
	seen := make(map[string]bool, len(jobs))
	var errs []error
	for i, job := range jobs {
		if job.ID == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: id is required", i))
			continue
		}
		if seen[job.ID] {
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate id %q", i, job.ID))
		}
		seen[job.ID] = true

		if g := job.Geofence; g != nil {
			if g.Latitude < -90 || g.Latitude > 90 {
				errs = append(errs, fmt.Errorf("job %q: latitude out of range", job.ID))
			}
			if g.Longitude < -180 || g.Longitude > 180 {
				errs = append(errs, fmt.Errorf("job %q: longitude out of range", job.ID))
			}
			if g.RadiusMeters <= 0 {
				errs = append(errs, fmt.Errorf("job %q: radius_meters must be positive", job.ID))
			}
		}
		if job.AutoTimer.DelayStartSeconds < 0 || job.AutoTimer.DelayStopSeconds < 0 {
			errs = append(errs, fmt.Errorf("job %q: delays must not be negative", job.ID))
		}
	}
	return errors.Join(errs...)
}
