// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ratelimit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the caps applied to one endpoint. A cap of zero or less is
// unlimited.
type Policy struct {
	Burst     int `yaml:"burst" json:"burst" mapstructure:"burst"`
	PerMinute int `yaml:"per_minute" json:"per_minute" mapstructure:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour" mapstructure:"per_hour"`
}

// Policies maps endpoints to caps. Keys are exact paths or prefix patterns
// ending in "*".
type Policies struct {
	Default   Policy            `yaml:"default" json:"default" mapstructure:"default"`
	Endpoints map[string]Policy `yaml:"endpoints" json:"endpoints" mapstructure:"endpoints"`
}

// DefaultPolicies returns the built-in endpoint caps
func DefaultPolicies() Policies {
	return Policies{
		Default: Policy{Burst: 10, PerMinute: 60, PerHour: 1000},
		Endpoints: map[string]Policy{
			"/save":         {Burst: 5, PerMinute: 30, PerHour: 500},
			"/search":       {Burst: 10, PerMinute: 60, PerHour: 1000},
			"/memories":     {Burst: 5, PerMinute: 30, PerHour: 300},
			"/batch-save":   {Burst: 2, PerMinute: 10, PerHour: 100},
			"/batch-search": {Burst: 2, PerMinute: 10, PerHour: 100},
			"/debug/*":      {Burst: 2, PerMinute: 10, PerHour: 50},
		},
	}
}

// Resolve returns the pattern and policy for endpoint: an exact match,
// then the longest matching prefix pattern, then the default.
func (p Policies) Resolve(endpoint string) (string, Policy) {
	if pol, ok := p.Endpoints[endpoint]; ok {
		return endpoint, pol
	}

	best, bestLen := "", -1
	var bestPolicy Policy
	for pattern, pol := range p.Endpoints {
		prefix, ok := strings.CutSuffix(pattern, "*")
		if !ok || !strings.HasPrefix(endpoint, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen, bestPolicy = pattern, len(prefix), pol
		}
	}
	if bestLen >= 0 {
		return best, bestPolicy
	}
	return "default", p.Default
}

// Merge overlays other onto p. Endpoint entries in other replace those in p;
// a non-zero default in other replaces p's default.
func (p Policies) Merge(other Policies) Policies {
	out := Policies{Default: p.Default, Endpoints: make(map[string]Policy, len(p.Endpoints)+len(other.Endpoints))}
	for k, v := range p.Endpoints {
		out.Endpoints[k] = v
	}
	for k, v := range other.Endpoints {
		out.Endpoints[k] = v
	}
	if other.Default != (Policy{}) {
		out.Default = other.Default
	}
	return out
}

// LoadPolicies reads a YAML policy file and overlays it on the defaults
func LoadPolicies(path string) (Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policies{}, fmt.Errorf("failed to read rate limit policies: %w", err)
	}

	var file Policies
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policies{}, fmt.Errorf("failed to parse rate limit policies: %w", err)
	}
	return DefaultPolicies().Merge(file), nil
}
