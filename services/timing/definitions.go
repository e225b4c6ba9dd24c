package timing

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefinitionSet is the static interval configuration of one analysis run.
//
//	intervals:
//	  - label: SSO to realtime
//	    start: bpsso.lenovo.com/webauthn
//	    end: /signalr/start
//	matrix:
//	  starts: [bpsso.lenovo.com/webauthn]
//	  ends: [/signalr/start, /api/navigation]
type DefinitionSet struct {
	Intervals []IntervalDefinition `yaml:"intervals"`
	Matrix    *Matrix              `yaml:"matrix,omitempty"`
}

// Matrix pairs every start marker with every end marker.
type Matrix struct {
	Starts []string `yaml:"starts"`
	Ends   []string `yaml:"ends"`
}

// Definitions flattens the set: explicit intervals first, then the matrix
// pairs grouped by end marker. Missing labels default to "start → end".
func (s DefinitionSet) Definitions() []IntervalDefinition {
	defs := make([]IntervalDefinition, 0, len(s.Intervals))
	defs = append(defs, s.Intervals...)
	if s.Matrix != nil {
		defs = append(defs, CrossProduct(s.Matrix.Starts, s.Matrix.Ends)...)
	}
	for i := range defs {
		if defs[i].Label == "" {
			defs[i].Label = defs[i].StartPattern + " → " + defs[i].EndPattern
		}
	}
	return defs
}

// Validate rejects definitions with empty markers, which would match every entry.
func (s DefinitionSet) Validate() error {
	defs := s.Definitions()
	if len(defs) == 0 {
		return fmt.Errorf("no interval definitions")
	}
	for i, d := range defs {
		if d.StartPattern == "" {
			return fmt.Errorf("interval %d (%s): empty start pattern", i, d.Label)
		}
		if d.EndPattern == "" {
			return fmt.Errorf("interval %d (%s): empty end pattern", i, d.Label)
		}
	}
	return nil
}

// CrossProduct returns one definition per (start, end) pair, iterating ends in
// the outer loop.
func CrossProduct(starts, ends []string) []IntervalDefinition {
	defs := make([]IntervalDefinition, 0, len(starts)*len(ends))
	for _, end := range ends {
		for _, start := range starts {
			defs = append(defs, IntervalDefinition{StartPattern: start, EndPattern: end})
		}
	}
	return defs
}

// ParseDefinitions decodes a YAML definition set and validates it.
func ParseDefinitions(r io.Reader) (DefinitionSet, error) {
	var set DefinitionSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		return DefinitionSet{}, fmt.Errorf("failed to parse definitions: %w", err)
	}
	if err := set.Validate(); err != nil {
		return DefinitionSet{}, err
	}
	return set, nil
}

// LoadDefinitionsFile reads a YAML definition set from disk.
func LoadDefinitionsFile(path string) (DefinitionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefinitionSet{}, fmt.Errorf("failed to open definitions: %w", err)
	}
	defer f.Close()
	return ParseDefinitions(f)
}

var presets = map[string]DefinitionSet{
	"login": {
		Intervals: []IntervalDefinition{
			{Label: "SSO login → realtime start", StartPattern: "bpsso.lenovo.com/webauthn", EndPattern: "/signalr/start"},
		},
	},
	"navigation": {
		Intervals: []IntervalDefinition{
			{StartPattern: "https://eu4-live.inside-graph.com", EndPattern: "signalr/start"},
			{StartPattern: "lenovopartnerhub.com", EndPattern: "/api/navigation"},
		},
	},
}

// Preset returns a built-in definition set by name.
func Preset(name string) (DefinitionSet, bool) {
	set, ok := presets[name]
	return set, ok
}

// PresetNames lists the built-in definition sets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
