// Package catalog loads the plan catalog (features, plans, per-plan feature
// values and prices) from YAML. The server seeds the database from it.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type Feature struct {
	Name        string             `yaml:"name"`
	Type        models.FeatureType `yaml:"type"`
	Description string             `yaml:"description"`
}

type Price struct {
	Interval        models.BillingInterval `yaml:"interval"`
	Currency        string                 `yaml:"currency"`
	PriceCents      int64                  `yaml:"price_cents"`
	ExternalPriceID string                 `yaml:"external_price_id"`
	Inactive        bool                   `yaml:"inactive"`
}

type Plan struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Features    map[string]string `yaml:"features"`
	Prices      []Price           `yaml:"prices"`
}

type Catalog struct {
	Features []Feature `yaml:"features"`
	Plans    []Plan    `yaml:"plans"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from path; an empty path yields Default.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Plan returns the named plan.
func (c *Catalog) Plan(name string) (*Plan, bool) {
	for i := range c.Plans {
		if c.Plans[i].Name == name {
			return &c.Plans[i], true
		}
	}
	return nil, false
}

// Validate checks that every plan only sets declared features with values
// of the declared type, and that prices are well formed.
func (c *Catalog) Validate() error {
	var errs []error

	types := make(map[string]models.FeatureType, len(c.Features))
	for _, f := range c.Features {
		switch f.Type {
		case models.FeatureBoolean, models.FeatureNumber, models.FeatureString:
		default:
			errs = append(errs, fmt.Errorf("feature %q: unknown type %q", f.Name, f.Type))
		}
		if _, dup := types[f.Name]; dup {
			errs = append(errs, fmt.Errorf("feature %q declared twice", f.Name))
		}
		types[f.Name] = f.Type
	}

	plans := make(map[string]struct{}, len(c.Plans))
	for _, p := range c.Plans {
		if p.Name == "" {
			errs = append(errs, errors.New("plan without a name"))
		}
		if _, dup := plans[p.Name]; dup {
			errs = append(errs, fmt.Errorf("plan %q declared twice", p.Name))
		}
		plans[p.Name] = struct{}{}

		for name, value := range p.Features {
			typ, ok := types[name]
			if !ok {
				errs = append(errs, fmt.Errorf("plan %q: undeclared feature %q", p.Name, name))
				continue
			}
			if err := checkValue(typ, value); err != nil {
				errs = append(errs, fmt.Errorf("plan %q feature %q: %w", p.Name, name, err))
			}
		}

		for _, pr := range p.Prices {
			if pr.Interval != models.IntervalMonthly && pr.Interval != models.IntervalYearly {
				errs = append(errs, fmt.Errorf("plan %q: unknown interval %q", p.Name, pr.Interval))
			}
			if pr.PriceCents < 0 {
				errs = append(errs, fmt.Errorf("plan %q: negative price", p.Name))
			}
			if pr.Currency == "" {
				errs = append(errs, fmt.Errorf("plan %q: price without currency", p.Name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrValidation, errors.Join(errs...))
	}
	return nil
}

func checkValue(typ models.FeatureType, value string) error {
	switch typ {
	case models.FeatureNumber:
		_, err := strconv.ParseInt(value, 10, 64)
		return err
	case models.FeatureBoolean:
		_, err := strconv.ParseBool(value)
		return err
	}
	return nil
}
