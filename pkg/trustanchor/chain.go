package trustanchor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Role declares one assumable role and the roles it may in turn assume.
// Trust chaining is explicit: every edge is declared here, and the graph
// is checked for cycles at configuration load, not at request time.
type Role struct {
	Name    string   `yaml:"name"`
	ARN     string   `yaml:"arn"`
	Assumes []string `yaml:"assumes"`
}

// Chain is a validated, acyclic capability graph over roles.
type Chain struct {
	byName map[string]Role
}

// NewChain validates edges and acyclicity.
func NewChain(roles []Role) (*Chain, error) {
	byName := make(map[string]Role, len(roles))
	for _, r := range roles {
		if r.Name == "" {
			return nil, fmt.Errorf("trustanchor: role with empty name")
		}
		if _, dup := byName[r.Name]; dup {
			return nil, fmt.Errorf("trustanchor: duplicate role %q", r.Name)
		}
		byName[r.Name] = r
	}
	for _, r := range roles {
		for _, a := range r.Assumes {
			if _, ok := byName[a]; !ok {
				return nil, fmt.Errorf("trustanchor: role %q assumes unknown role %q", r.Name, a)
			}
		}
	}
	// DFS with colors: grey on the stack, black finished.
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		for _, a := range byName[name].Assumes {
			switch color[a] {
			case grey:
				return fmt.Errorf("trustanchor: assumption cycle through %q", a)
			case white:
				if err := visit(a); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for name := range byName {
		if color[name] == white {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return &Chain{byName: byName}, nil
}

// LoadChain parses and validates a roles yaml file: a top-level `roles:` list.
func LoadChain(path string) (*Chain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Roles []Role `yaml:"roles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return NewChain(doc.Roles)
}

// MayAssume reports whether from declares a direct edge to to.
func (c *Chain) MayAssume(from, to string) bool {
	r, ok := c.byName[from]
	if !ok {
		return false
	}
	for _, a := range r.Assumes {
		if a == to {
			return true
		}
	}
	return false
}
