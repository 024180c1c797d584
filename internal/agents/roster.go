// Package agents runs the insight-agent roster over a normalized
// submission.
package agents

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MaxRoster bounds the roster, and with it the dispatch worker pool.
const MaxRoster = 10

// RosterEntry is one agent the dispatcher calls.
type RosterEntry struct {
	ID           string `yaml:"id"`
	DisplayName  string `yaml:"display_name"`
	PromptSuffix string `yaml:"prompt_suffix"`
}

// Roster is the fixed list of agents run for every submission.
type Roster []RosterEntry

// IDs returns the agent IDs in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, len(r))
	for i, e := range r {
		ids[i] = e.ID
	}
	return ids
}

// Validate checks that the roster is non-empty, within MaxRoster, and
// free of blank or duplicate IDs.
func (r Roster) Validate() error {
	if len(r) == 0 {
		return eris.New("agents: roster is empty")
	}
	if len(r) > MaxRoster {
		return eris.Errorf("agents: roster has %d agents, max %d", len(r), MaxRoster)
	}
	seen := make(map[string]bool, len(r))
	for i, e := range r {
		if e.ID == "" {
			return eris.Errorf("agents: roster entry %d has no id", i)
		}
		if seen[e.ID] {
			return eris.Errorf("agents: duplicate roster id %s", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// DefaultRoster is used when no roster file is configured.
func DefaultRoster() Roster {
	return Roster{
		{ID: "a9b0250c-0e6c-45a2-9214-0441af43b36a", DisplayName: "LossInsight",
			PromptSuffix: "Summarize loss history, frequency and severity trends from the Loss Run section."},
		{ID: "cb8d305d7cf54bbbbf0490787079dbcb", DisplayName: "ExposureInsight",
			PromptSuffix: "Assess exposures across the Property, Auto and General Liability sections."},
		{ID: "48e0fde3-2c69-44f0-98d6-b6a5b031c2bb", DisplayName: "EligibilityCheck"},
		{ID: "6097c379-9637-4198-abad-a9d5416fb650", DisplayName: "InsuranceVerify"},
		{ID: "8c72ba1d-9403-4782-8f8c-12564ab73f9c", DisplayName: "PropEval",
			PromptSuffix: "Evaluate each property location's construction, occupancy and protection."},
		{ID: "383daaad-4b46-491b-b987-9dd17d430ca3", DisplayName: "BusinessProfileSearch",
			PromptSuffix: "Research the insured business named in Firmographics."},
	}
}

type rosterFile struct {
	Agents Roster `yaml:"agents"`
}

// LoadRoster reads a roster from a YAML file of the form
//
//	agents:
//	  - id: ...
//	    display_name: ...
//	    prompt_suffix: ...
//
// An empty path returns DefaultRoster.
func LoadRoster(path string) (Roster, error) {
	if path == "" {
		return DefaultRoster(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "agents: read roster %s", path)
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "agents: parse roster %s", path)
	}
	if err := f.Agents.Validate(); err != nil {
		return nil, err
	}
	return f.Agents, nil
}
