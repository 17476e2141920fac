package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	perrors "github.com/cadre-oss/patternmem/internal/errors"
	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/resolver"
)

// configValidate is the validator instance for configuration types.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = configValidate.RegisterValidation("strategy", validateStrategy)
	_ = configValidate.RegisterValidation("duration", validateDuration)
}

func validateStrategy(fl validator.FieldLevel) bool {
	return resolver.Strategy(strings.ToLower(strings.TrimSpace(fl.Field().String()))).Valid()
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return perrors.Wrap(perrors.CodeConfigInvalid, "config validation failed", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"confidence":     w.Confidence,
		"security_bonus": w.SecurityBonus,
		"category_bonus": w.CategoryBonus,
		"recency":        w.Recency,
		"team_match":     w.TeamMatch,
		"team_other":     w.TeamOther,
	} {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("weights.%s must not be negative", name))
		}
	}

	known := make(map[event.EventType]bool, len(event.AllTypes))
	for _, t := range event.AllTypes {
		known[t] = true
	}
	for _, h := range c.Hooks.Hooks {
		for _, e := range h.Events {
			if !known[event.EventType(e)] {
				problems = append(problems, fmt.Sprintf("hook %s: unknown event %q", h.Name, e))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	// Map iteration above is unordered.
	sort.Strings(problems)
	return perrors.New(perrors.CodeConfigInvalid, "config validation failed: "+strings.Join(problems, "; ")).
		WithSuggestion("Fix " + FileName + " or run 'patternmem config show' to see the effective values")
}

// describe turns a validator error into a short, yaml-keyed message.
func describe(fe validator.FieldError) string {
	field := yamlPath(fe.Namespace())
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "strategy":
		return fmt.Sprintf("%s: unknown strategy %q", field, fe.Value())
	case "duration":
		return fmt.Sprintf("%s: invalid duration %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// yamlPath strips the root type from a namespace such as
// "Config.snapshot.flush_interval".
func yamlPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
