package licensing

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanSpec describes a plan tier and the provider prices that buy it.
type PlanSpec struct {
	Plan   Plan               `yaml:"plan"`
	Name   string             `yaml:"name"`
	Seats  int                `yaml:"seats"`
	Prices map[Cadence]string `yaml:"prices"`
}

type catalogFile struct {
	Plans []PlanSpec `yaml:"plans"`
}

type priceRef struct {
	plan    Plan
	cadence Cadence
}

// Catalog maps provider price ids to plans and plans to seat counts.
// It is immutable after construction.
type Catalog struct {
	plans  map[Plan]PlanSpec
	prices map[string]priceRef
}

// NewCatalog validates specs and indexes them.
func NewCatalog(specs []PlanSpec) (*Catalog, error) {
	c := &Catalog{
		plans:  make(map[Plan]PlanSpec, len(specs)),
		prices: make(map[string]priceRef),
	}

	for _, spec := range specs {
		if !spec.Plan.Valid() {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("unknown plan %q", spec.Plan))
		}
		if _, dup := c.plans[spec.Plan]; dup {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q listed twice", spec.Plan))
		}
		if spec.Seats < 1 {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q must have at least one seat", spec.Plan))
		}
		for cadence, priceID := range spec.Prices {
			if !cadence.Valid() {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q has unknown cadence %q", spec.Plan, cadence))
			}
			if priceID == "" {
				continue
			}
			if prev, dup := c.prices[priceID]; dup {
				return nil, errors.Join(ErrInvalidCatalog,
					fmt.Errorf("price %q used by both %s and %s", priceID, prev.plan, spec.Plan))
			}
			c.prices[priceID] = priceRef{plan: spec.Plan, cadence: cadence}
		}
		c.plans[spec.Plan] = spec
	}

	for _, p := range []Plan{PlanStandard, PlanProfessional, PlanEnterprise} {
		if _, ok := c.plans[p]; !ok {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %q is missing", p))
		}
	}
	return c, nil
}

// DefaultCatalog returns the built-in seat counts with no price ids.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]PlanSpec{
		{Plan: PlanStandard, Name: "Standard", Seats: 1},
		{Plan: PlanProfessional, Name: "Professional", Seats: 3},
		{Plan: PlanEnterprise, Name: "Enterprise", Seats: 10},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog parses a YAML catalogue:
//
//	plans:
//	  - plan: standard
//	    name: Standard
//	    seats: 1
//	    prices:
//	      monthly: pri_01h...
//	      annual: pri_01j...
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return NewCatalog(f.Plans)
}

// LoadCatalogFile reads a catalogue from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	defer func() { _ = f.Close() }()

	return LoadCatalog(f)
}

// Resolve maps a provider price id to its plan and cadence.
func (c *Catalog) Resolve(priceID string) (Plan, Cadence, error) {
	ref, ok := c.prices[priceID]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownPrice, priceID)
	}
	return ref.plan, ref.cadence, nil
}

// Seats returns the seat count of plan, or 1 for unknown plans.
func (c *Catalog) Seats(plan Plan) int {
	if spec, ok := c.plans[plan]; ok {
		return spec.Seats
	}
	return 1
}

// PriceID returns the provider price id configured for plan at cadence.
func (c *Catalog) PriceID(plan Plan, cadence Cadence) (string, bool) {
	id, ok := c.plans[plan].Prices[cadence]
	return id, ok && id != ""
}

// Plan returns the spec of plan.
func (c *Catalog) Plan(plan Plan) (PlanSpec, bool) {
	spec, ok := c.plans[plan]
	return spec, ok
}
