package reconciler

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
)

// options configures a reconciler.
type options struct {
	serviceBlueprint   string
	frameworkBlueprint string
	relation           string
	property           string
	stateProperty      string
	dryRun             bool
	logger             *zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		serviceBlueprint:   constants.ServiceBlueprint,
		frameworkBlueprint: constants.FrameworkBlueprint,
		relation:           constants.FrameworkRelation,
		property:           constants.EOLCountProperty,
		stateProperty:      constants.StateProperty,
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// newOptions returns reconciler options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

func required(field, value string) error {
	if value == "" {
		return errors.NewConfigError("reconciler", field+" cannot be empty", nil)
	}
	return nil
}

// WithRelation sets the service relation that holds framework identifiers.
func WithRelation(name string) Option {
	return func(o *options) error {
		if err := required("relation", name); err != nil {
			return err
		}
		o.relation = name
		return nil
	}
}

// WithServiceBlueprint sets the blueprint whose entities receive the count.
func WithServiceBlueprint(blueprint string) Option {
	return func(o *options) error {
		if err := required("service blueprint", blueprint); err != nil {
			return err
		}
		o.serviceBlueprint = blueprint
		return nil
	}
}

// WithFrameworkBlueprint sets the blueprint holding framework lifecycle states.
func WithFrameworkBlueprint(blueprint string) Option {
	return func(o *options) error {
		if err := required("framework blueprint", blueprint); err != nil {
			return err
		}
		o.frameworkBlueprint = blueprint
		return nil
	}
}

// WithProperty sets the service property the count is written to.
func WithProperty(name string) Option {
	return func(o *options) error {
		if err := required("property", name); err != nil {
			return err
		}
		o.property = name
		return nil
	}
}

// WithStateProperty sets the framework property holding the lifecycle state.
func WithStateProperty(name string) Option {
	return func(o *options) error {
		if err := required("state property", name); err != nil {
			return err
		}
		o.stateProperty = name
		return nil
	}
}

// WithDryRun computes counts without writing them.
func WithDryRun(enabled bool) Option {
	return func(o *options) error {
		o.dryRun = enabled
		return nil
	}
}

// WithLogger overrides the logger taken from the context.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
