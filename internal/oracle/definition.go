package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/solverlab/bellman/internal/domain"
)

// Definition is the serializable form of a Program, the model format
// the CLI and the API accept.
type Definition struct {
	Name      string        `json:"name,omitempty"`
	States    []StateDecl   `json:"states"`
	Actions   []string      `json:"actions"`
	Utilities []UtilityDecl `json:"utilities,omitempty"`
	Facts     []FactDecl    `json:"facts,omitempty"`
	Choices   []ChoiceDecl  `json:"choices,omitempty"`
	Rules     []RuleDecl    `json:"rules,omitempty"`
}

type StateDecl struct {
	Term string `json:"term"`
	// Tag is an optional explicit classification: binary, enum, enum(N).
	Tag string `json:"tag,omitempty"`
}

type UtilityDecl struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

type FactDecl struct {
	Term string  `json:"term"`
	Prob float64 `json:"prob"`
}

type ChoiceDecl struct {
	Terms []string  `json:"terms"`
	Probs []float64 `json:"probs"`
}

type RuleDecl struct {
	Target  string          `json:"target"`
	Entries []RuleEntryDecl `json:"entries"`
}

type RuleEntryDecl struct {
	When map[string]int `json:"when,omitempty"`
	Prob float64        `json:"prob"`
}

// FromDefinition materializes a Program from its serializable form.
func FromDefinition(def Definition) (*Program, error) {
	p := NewProgram()
	ctx := context.Background()

	for _, s := range def.States {
		if s.Term == "" {
			return nil, fmt.Errorf("state declaration with empty term")
		}
		if s.Tag == "" {
			p.DeclareState(domain.Term(s.Term))
			continue
		}
		p.DeclareStateTagged(domain.Term(s.Term), domain.Term(s.Tag))
	}
	for _, a := range def.Actions {
		if a == "" {
			return nil, fmt.Errorf("action declaration with empty term")
		}
		p.DeclareAction(domain.Term(a))
	}
	for _, u := range def.Utilities {
		p.DeclareUtility(domain.Term(u.Term), u.Weight)
	}
	for _, f := range def.Facts {
		if err := p.AddFact(ctx, domain.Term(f.Term), f.Prob); err != nil {
			return nil, err
		}
	}
	for _, c := range def.Choices {
		terms := make([]domain.Term, len(c.Terms))
		for i, t := range c.Terms {
			terms[i] = domain.Term(t)
		}
		if err := p.AddChoiceGroup(ctx, terms, c.Probs); err != nil {
			return nil, err
		}
	}
	for _, r := range def.Rules {
		if r.Target == "" {
			return nil, fmt.Errorf("rule with empty target")
		}
		entries := make([]RuleEntry, len(r.Entries))
		for i, e := range r.Entries {
			when := make(domain.Evidence, len(e.When))
			for term, val := range e.When {
				if val != 0 && val != 1 {
					return nil, fmt.Errorf("rule for %s: condition value %d outside {0,1}", r.Target, val)
				}
				when[domain.Term(term)] = val
			}
			entries[i] = RuleEntry{When: when, Prob: e.Prob}
		}
		if err := p.Rule(domain.Term(r.Target), entries...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadDefinition reads a model definition from a JSON file.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse definition %s: %w", path, err)
	}
	return def, nil
}
