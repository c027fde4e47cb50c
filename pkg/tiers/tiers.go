// Package tiers holds the medallion hierarchy configuration: the ordered
// tier list, each tier's storage location, its readers, and the single
// upstream tier permitted to write into it.
package tiers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier is one stage in the refinement hierarchy. Configuration-time only.
type Tier struct {
	Name     string   `yaml:"name"`
	Location string   `yaml:"location"`
	Readers  []string `yaml:"readers"`
	Writers  []string `yaml:"writers"`
	// WriteFrom names the only tier whose contents may be promoted into
	// this one. Empty for the entry tier (landing).
	WriteFrom string `yaml:"write_from"`
}

// Policy is an immutable, validated tier table. Build a new one and swap
// it to change configuration; never mutate in place.
type Policy struct {
	ordered []Tier
	byName  map[string]Tier
}

// Default returns the standard four-stage hierarchy with open locations
// and no readers configured. Used for dev bring-up and tests.
func Default() *Policy {
	p, _ := New([]Tier{
		{Name: "landing"},
		{Name: "refined", WriteFrom: "landing"},
		{Name: "curated", WriteFrom: "refined"},
		{Name: "trusted", WriteFrom: "curated"},
	})
	return p
}

// New validates the tier list and builds a Policy. Validation happens at
// configuration load, not per request: every WriteFrom must name a known
// tier and the promotion graph must be acyclic.
func New(list []Tier) (*Policy, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("tiers: empty tier list")
	}
	byName := make(map[string]Tier, len(list))
	for _, t := range list {
		if t.Name == "" {
			return nil, fmt.Errorf("tiers: tier with empty name")
		}
		if _, dup := byName[t.Name]; dup {
			return nil, fmt.Errorf("tiers: duplicate tier %q", t.Name)
		}
		byName[t.Name] = t
	}
	for _, t := range list {
		if t.WriteFrom == "" {
			continue
		}
		if _, ok := byName[t.WriteFrom]; !ok {
			return nil, fmt.Errorf("tiers: tier %q promotes from unknown tier %q", t.Name, t.WriteFrom)
		}
		if t.WriteFrom == t.Name {
			return nil, fmt.Errorf("tiers: tier %q promotes from itself", t.Name)
		}
	}
	// Walk each tier's upstream chain; revisiting a node within one walk
	// means the promotion graph has a cycle.
	for _, t := range list {
		seen := map[string]bool{t.Name: true}
		cur := t.WriteFrom
		for cur != "" {
			if seen[cur] {
				return nil, fmt.Errorf("tiers: promotion cycle through %q", cur)
			}
			seen[cur] = true
			cur = byName[cur].WriteFrom
		}
	}
	return &Policy{ordered: append([]Tier(nil), list...), byName: byName}, nil
}

// Load parses and validates a tiers yaml file: a top-level `tiers:` list.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return New(doc.Tiers)
}

// Get returns the named tier.
func (p *Policy) Get(name string) (Tier, bool) {
	t, ok := p.byName[name]
	return t, ok
}

// List returns the tiers in declaration order.
func (p *Policy) List() []Tier { return append([]Tier(nil), p.ordered...) }

// CanRead reports whether principal appears in the tier's reader set.
// Unknown tiers and empty reader sets fail closed.
func (p *Policy) CanRead(tier, principal string) bool {
	t, ok := p.byName[tier]
	if !ok || principal == "" {
		return false
	}
	for _, r := range t.Readers {
		if r == principal {
			return true
		}
	}
	return false
}

// CanWrite reports whether principal may write into the tier. Fails closed
// like CanRead.
func (p *Policy) CanWrite(tier, principal string) bool {
	t, ok := p.byName[tier]
	if !ok || principal == "" {
		return false
	}
	for _, w := range t.Writers {
		if w == principal {
			return true
		}
	}
	return false
}

// Adjacent reports whether dest declares source as its upstream tier.
func (p *Policy) Adjacent(source, dest string) bool {
	d, ok := p.byName[dest]
	return ok && d.WriteFrom == source
}
