// Package space turns proposal fields into comparable vectors. A text space embeds a
// text field with a sentence model; a bounded numeric space maps a number onto a [0,1]
// preference scalar.
package space

import (
	"context"
	"fmt"
	"math"

	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// Kind is the type of an embedding space.
type Kind string

const (
	KindText           Kind = "text"
	KindBoundedNumeric Kind = "bounded_numeric"
)

// Mode is the preferred direction of a bounded numeric space.
type Mode string

const (
	ModeMaximum Mode = "maximum"
	ModeMinimum Mode = "minimum"
)

// Config describes one space. Name binds query weights and targets to the space.
type Config struct {
	Name     string  `yaml:"name" json:"name"`
	Field    string  `yaml:"field" json:"field"`
	Kind     Kind    `yaml:"kind" json:"kind"`
	Model    string  `yaml:"model,omitempty" json:"model,omitempty"`
	MinValue float64 `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue float64 `yaml:"max_value,omitempty" json:"max_value,omitempty"`
	Mode     Mode    `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Validate checks that the config names a known field of the right type.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("space name is required")
	}
	var blank models.ProposalRecord
	switch c.Kind {
	case KindText:
		if _, ok := blank.TextField(c.Field); !ok {
			return fmt.Errorf("space %q: %q is not a text field", c.Name, c.Field)
		}
	case KindBoundedNumeric:
		if _, ok := blank.NumericField(c.Field); !ok {
			return fmt.Errorf("space %q: %q is not a numeric field", c.Name, c.Field)
		}
		if math.IsNaN(c.MinValue) || math.IsNaN(c.MaxValue) || c.MaxValue <= c.MinValue {
			return fmt.Errorf("space %q: max_value must be greater than min_value", c.Name)
		}
		if c.Mode != ModeMaximum && c.Mode != ModeMinimum {
			return fmt.Errorf("space %q: mode must be %q or %q", c.Name, ModeMaximum, ModeMinimum)
		}
	default:
		return fmt.Errorf("space %q: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// Space computes one vector per record.
type Space interface {
	Name() string
	Kind() Kind
	Field() string
	// Model identifies what produced the vectors; a change invalidates stored vectors.
	Model() string
	Dimensions() int
	// CheckSource returns *models.MissingFieldError when the record lacks the source field.
	CheckSource(rec *models.ProposalRecord) error
	// Embed returns the record's vector, or *models.MissingFieldError when its source is empty.
	Embed(ctx context.Context, rec *models.ProposalRecord) ([]float32, error)
	// Source returns the field value the vector is derived from, for change detection.
	Source(rec *models.ProposalRecord) string
}

// EmbedderResolver returns the embedder for a model name.
type EmbedderResolver func(model string) (embedding.Embedder, error)

// Build constructs the spaces in configuration order.
func Build(configs []Config, resolve EmbedderResolver) ([]Space, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one space is required")
	}
	seen := make(map[string]bool, len(configs))
	spaces := make([]Space, 0, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate space name %q", c.Name)
		}
		seen[c.Name] = true

		switch c.Kind {
		case KindText:
			emb, err := resolve(c.Model)
			if err != nil {
				return nil, fmt.Errorf("space %q: %w", c.Name, err)
			}
			spaces = append(spaces, NewTextSpace(c, emb))
		case KindBoundedNumeric:
			spaces = append(spaces, NewNumberSpace(c))
		}
	}
	return spaces, nil
}
