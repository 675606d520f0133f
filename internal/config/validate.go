package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig indicates the configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string

	causes []error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.causes...)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	var (
		problems []string
		causes   []error
	)

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	if err := c.RankingWeights().Validate(); err != nil {
		problems = append(problems, "ranking.weights: "+err.Error())
		causes = append(causes, err)
	}

	if c.Dataset.Timezone != "" {
		if _, err := time.LoadLocation(c.Dataset.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("dataset.timezone: unknown zone %q", c.Dataset.Timezone))
		}
	}

	if c.Dataset.ReloadInterval < 0 {
		problems = append(problems, "dataset.reload_interval: must not be negative")
	}

	if c.Scoring.MaxAgeDays > 0 && c.Scoring.HalfLifeDays > c.Scoring.MaxAgeDays {
		problems = append(problems, "scoring.half_life_days: must not exceed max_age_days")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems, causes: causes}
	}
	return nil
}

// describe renders a field error using the dotted config key.
func describe(fe validator.FieldError) string {
	key := configKey(fe.Namespace())
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s", key, fe.Tag())
}

// configKey drops the root struct name: Config.dedup.target_count becomes dedup.target_count.
func configKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

