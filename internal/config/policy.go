package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sla-clock/internal/calendar"
	"sla-clock/internal/sla"
)

// ErrInvalidPolicy wraps every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid SLA policy")

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Policy is the SLA policy file: business calendar, status sets and
// per-priority thresholds.
type Policy struct {
	Window          WindowPolicy             `yaml:"calendar" validate:"required"`
	Statuses        StatusPolicy             `yaml:"statuses" validate:"required"`
	Limits          map[string]time.Duration `yaml:"thresholds" validate:"required,min=1,dive,keys,required,endkeys,required"`
	DefaultPriority string                   `yaml:"default_priority,omitempty"`
}

// WindowPolicy is the weekly business window.
type WindowPolicy struct {
	Timezone     string `yaml:"timezone" validate:"omitempty,timezone"`
	WeekdayStart string `yaml:"weekday_start" validate:"required,weekday"`
	WeekdayEnd   string `yaml:"weekday_end" validate:"required,weekday"`
	HourStart    int    `yaml:"hour_start" validate:"min=0,max=23"`
	HourEnd      int    `yaml:"hour_end" validate:"min=1,max=24,gtfield=HourStart"`
}

// StatusPolicy lists the labels of each clock category.
type StatusPolicy struct {
	Active  []string `yaml:"active" validate:"required,min=1,dive,required"`
	Paused  []string `yaml:"paused" validate:"dive,required"`
	Ignored []string `yaml:"ignored" validate:"dive,required"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() *Policy {
	return &Policy{
		Window: WindowPolicy{
			Timezone:     "Asia/Kolkata",
			WeekdayStart: "monday",
			WeekdayEnd:   "friday",
			HourStart:    10,
			HourEnd:      18,
		},
		Statuses: StatusPolicy{
			Active:  []string{"In Progress", "Triage", "in-progress", "reopened"},
			Paused:  []string{"Waiting for Customer", "Done", "Resolved", "Closed", "unlabeled"},
			Ignored: []string{"Cancelled", "Duplicate"},
		},
		Limits: map[string]time.Duration{
			"P1": 16 * time.Hour,
			"P2": 24 * time.Hour,
			"P3": 32 * time.Hour,
			"P4": 40 * time.Hour,
		},
	}
}

// LoadPolicy reads and validates a YAML policy. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate runs tag validation followed by the cross-field checks.
func (p *Policy) Validate() error {
	p.Window.WeekdayStart = strings.ToLower(strings.TrimSpace(p.Window.WeekdayStart))
	p.Window.WeekdayEnd = strings.ToLower(strings.TrimSpace(p.Window.WeekdayEnd))

	if err := policyValidator().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidPolicy, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	owner := make(map[string]string)
	for _, set := range []struct {
		name   string
		labels []string
	}{
		{"active", p.Statuses.Active},
		{"paused", p.Statuses.Paused},
		{"ignored", p.Statuses.Ignored},
	} {
		for _, l := range set.labels {
			key := strings.ToLower(strings.TrimSpace(l))
			if prev, ok := owner[key]; ok && prev != set.name {
				return fmt.Errorf("%w: status %q is both %s and %s", ErrInvalidPolicy, l, prev, set.name)
			}
			owner[key] = set.name
		}
	}

	for k, d := range p.Limits {
		if d < time.Second {
			return fmt.Errorf("%w: threshold %s must be at least 1s, got %s", ErrInvalidPolicy, k, d)
		}
	}

	if p.DefaultPriority != "" {
		if _, ok := p.Thresholds().Table[sla.ParsePriority(p.DefaultPriority)]; !ok {
			return fmt.Errorf("%w: default_priority %q has no threshold", ErrInvalidPolicy, p.DefaultPriority)
		}
	}

	if _, err := p.Calendar(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}

// Calendar compiles the business window.
func (p *Policy) Calendar() (*calendar.Calendar, error) {
	return calendar.New(calendar.Config{
		Timezone:     p.Window.Timezone,
		WeekdayStart: weekdays[strings.ToLower(p.Window.WeekdayStart)],
		WeekdayEnd:   weekdays[strings.ToLower(p.Window.WeekdayEnd)],
		HourStart:    p.Window.HourStart,
		HourEnd:      p.Window.HourEnd,
	})
}

// Categories returns the status sets.
func (p *Policy) Categories() sla.Categories {
	return sla.Categories{
		Active:  p.Statuses.Active,
		Paused:  p.Statuses.Paused,
		Ignored: p.Statuses.Ignored,
	}
}

// Thresholds converts the duration table into whole business seconds.
// Unknown priorities fall back to the largest threshold.
func (p *Policy) Thresholds() sla.Thresholds {
	t := sla.Thresholds{Table: make(map[sla.Priority]int64, len(p.Limits))}
	for k, d := range p.Limits {
		t.Table[sla.ParsePriority(k)] = int64(d / time.Second)
	}
	return t
}

// Priorities lists the configured priority codes in order.
func (p *Policy) Priorities() []sla.Priority {
	out := make([]sla.Priority, 0, len(p.Limits))
	for k := range p.Limits {
		out = append(out, sla.ParsePriority(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolvePriority applies default_priority to issues that carry none.
func (p *Policy) ResolvePriority(pr sla.Priority) sla.Priority {
	if pr == "" && p.DefaultPriority != "" {
		return sla.ParsePriority(p.DefaultPriority)
	}
	return pr
}

var (
	vOnce sync.Once
	vInst *validator.Validate
)

func policyValidator() *validator.Validate {
	vOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// report yaml keys in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})

		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, ok := weekdays[strings.ToLower(fl.Field().String())]
			return ok
		})

		vInst = v
	})
	return vInst
}
