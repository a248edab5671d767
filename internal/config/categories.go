package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CategoryConfig is one entry of the operator category table.
type CategoryConfig struct {
	Name                string   `yaml:"name" json:"name" validate:"required"`
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	Keywords            []string `yaml:"sunbiz_keywords" json:"sunbiz_keywords" validate:"dive,required"`
	MinLocations        int      `yaml:"min_locations" json:"min_locations" validate:"gte=0"`
	DecisionMakerTitles []string `yaml:"decision_maker_titles" json:"decision_maker_titles"`
	Priority            int      `yaml:"priority" json:"priority" validate:"gte=0"`
}

// CategoryTable is the category configuration file.
type CategoryTable struct {
	Categories []CategoryConfig `yaml:"categories" json:"categories" validate:"dive"`
}

// Lookup returns the category entry with the given name.
func (t *CategoryTable) Lookup(name string) (CategoryConfig, bool) {
	if t == nil {
		return CategoryConfig{}, false
	}
	for _, c := range t.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryConfig{}, false
}

// Enabled returns the enabled categories in file order.
func (t *CategoryTable) Enabled() []CategoryConfig {
	if t == nil {
		return nil
	}
	var out []CategoryConfig
	for _, c := range t.Categories {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

var validate = validator.New()

// LoadCategories reads the category table from path. JSON and YAML files are
// both accepted. A missing file yields an empty table so nothing qualifies.
func LoadCategories(path string) (*CategoryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("config: category table not found, no categories will qualify",
				zap.String("path", path),
			)
			return &CategoryTable{}, nil
		}
		return nil, eris.Wrapf(err, "config: read category table %s", path)
	}

	var table CategoryTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrapf(err, "config: parse category table %s", path)
	}
	if err := validate.Struct(&table); err != nil {
		return nil, eris.Wrapf(err, "config: validate category table %s", path)
	}

	return &table, nil
}
