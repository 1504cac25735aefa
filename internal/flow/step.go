// Package flow drives the loan and onboarding funnels as linear sequences
// of steps over an application's draft scope.
package flow

import (
	"context"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/validation"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/permission"
)

type GateKind string

const (
	GateNone       GateKind = ""
	GateOTP        GateKind = "otp"
	GatePermission GateKind = "permission"
	GateCountdown  GateKind = "countdown"
)

// Gate must be satisfied before Continue leaves a step.
type Gate struct {
	Kind        GateKind
	Countdown   time.Duration
	Permissions []permission.Kind
}

// Loader reads another draft of the same scope. Seeds use it.
type Loader func(ctx context.Context, key string) (draft.Draft, bool, error)

type Step struct {
	ID      string
	Ordinal int
	Route   string

	DraftKey  string
	Fields    []string
	Defaults  draft.Draft
	Normalize map[string]func(string) string
	Validate  func(draft.Draft) validation.FieldErrors
	Seed      func(ctx context.Context, load Loader) (draft.Draft, error)

	// Numbers are stored as float64. Values that do not parse are dropped.
	Numbers []string

	Gate         Gate
	Next         string
	ClearOnEnter []string
	Terminal     bool
}

func (s *Step) tracks(field string) bool { return contains(s.Fields, field) }

func (s *Step) numeric(field string) bool { return contains(s.Numbers, field) }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Definition is an ordered flow. Steps[0] is the entry step.
type Definition struct {
	Name  string
	Steps []*Step
	index map[string]*Step
}

// NewDefinition numbers the steps, links each to its successor when Next
// is unset, and validates the result.
func NewDefinition(name string, steps ...*Step) (*Definition, error) {
	d := &Definition{Name: name, Steps: steps, index: make(map[string]*Step, len(steps))}
	for i, s := range steps {
		s.Ordinal = i
		if s.Route == "" {
			s.Route = "/" + name + "/" + s.ID
		}
		if s.Next == "" && !s.Terminal && i+1 < len(steps) {
			s.Next = steps[i+1].ID
		}
		d.index[s.ID] = s
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks that the steps form one simple path from the entry step
// to a single terminal step.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("flow %s has no steps", d.Name)
	}

	seen := make(map[string]bool, len(d.Steps))
	terminals := 0
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("flow %s: step %d has no id", d.Name, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("flow %s: duplicate step %s", d.Name, s.ID)
		}
		seen[s.ID] = true

		if s.Terminal {
			terminals++
			if s.Next != "" {
				return fmt.Errorf("flow %s: terminal step %s has a next step", d.Name, s.ID)
			}
			if s.Gate.Kind != GateNone {
				return fmt.Errorf("flow %s: terminal step %s is gated", d.Name, s.ID)
			}
			continue
		}
		if i+1 >= len(d.Steps) || s.Next != d.Steps[i+1].ID {
			return fmt.Errorf("flow %s: step %s must lead to the step at ordinal %d", d.Name, s.ID, i+1)
		}
		if s.Gate.Kind == GateCountdown && s.Gate.Countdown <= 0 {
			return fmt.Errorf("flow %s: step %s has a countdown gate without a duration", d.Name, s.ID)
		}
		if s.Gate.Kind == GatePermission && len(s.Gate.Permissions) == 0 {
			return fmt.Errorf("flow %s: step %s has a permission gate without kinds", d.Name, s.ID)
		}
	}
	if terminals != 1 || !d.Steps[len(d.Steps)-1].Terminal {
		return fmt.Errorf("flow %s: expected exactly one terminal step at the end, found %d", d.Name, terminals)
	}
	return nil
}

func (d *Definition) Entry() *Step { return d.Steps[0] }

func (d *Definition) Step(id string) (*Step, bool) {
	s, ok := d.index[id]
	return s, ok
}

// DraftKeys lists the keys owned by steps of the flow.
func (d *Definition) DraftKeys() []string {
	var keys []string
	for _, s := range d.Steps {
		if s.DraftKey != "" {
			keys = append(keys, s.DraftKey)
		}
	}
	return keys
}
