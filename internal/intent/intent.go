// Package intent routes a chat message to a control command, a known
// scenario, or the dynamic translator.
package intent

import "strings"

type Route string

const (
	RouteControl  Route = "control"
	RouteScenario Route = "scenario"
	RouteDynamic  Route = "dynamic"
)

type Match struct {
	Route      Route  `json:"route"`
	ScenarioID string `json:"scenario_id,omitempty"`
}

// Predicate reports whether a lowercased message selects a rule.
type Predicate func(text string) bool

type Rule struct {
	ScenarioID string
	Matches    Predicate
}

// Keywords matches when any keyword occurs as a substring.
func Keywords(keywords ...string) Predicate {
	lowered := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			lowered = append(lowered, keyword)
		}
	}
	return func(text string) bool {
		for _, keyword := range lowered {
			if strings.Contains(text, keyword) {
				return true
			}
		}
		return false
	}
}

var ControlKeywords = []string{"/diagnose", "diagnostics", "connection test", "supabase"}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	control Predicate
	rules   []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	return &Classifier{
		control: Keywords(ControlKeywords...),
		rules:   append([]Rule(nil), rules...),
	}
}

func (c *Classifier) Classify(text string) Match {
	lowered := strings.ToLower(text)
	if c.control(lowered) {
		return Match{Route: RouteControl}
	}
	for _, rule := range c.rules {
		if rule.Matches != nil && rule.Matches(lowered) {
			return Match{Route: RouteScenario, ScenarioID: rule.ScenarioID}
		}
	}
	return Match{Route: RouteDynamic}
}
