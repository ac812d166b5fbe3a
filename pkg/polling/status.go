package polling

import (
	"time"
)

// ResourceStatus is the health of one resource.
type ResourceStatus struct {
	Key        string        `json:"key" yaml:"key"`
	Path       string        `json:"path" yaml:"path"`
	Frequency  time.Duration `json:"frequency" yaml:"frequency"`
	LastUpdate *time.Time    `json:"lastUpdate,omitempty" yaml:"last_update,omitempty"`
	LastError  string        `json:"lastError,omitempty" yaml:"last_error,omitempty"`
	Updates    int           `json:"updates" yaml:"updates"`
	Failures   int           `json:"failures" yaml:"failures"`
	Skipped    int           `json:"skipped" yaml:"skipped"`
}

// SystemStatus is the payload of system-status-updated.
type SystemStatus struct {
	Active    bool             `json:"active" yaml:"active"`
	Online    bool             `json:"online" yaml:"online"`
	Visible   bool             `json:"visible" yaml:"visible"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
	Resources []ResourceStatus `json:"resources" yaml:"resources"`
}

// Healthy reports whether every resource's latest poll succeeded.
func (s SystemStatus) Healthy() bool {
	for _, r := range s.Resources {
		if r.LastError != "" {
			return false
		}
	}
	return true
}
