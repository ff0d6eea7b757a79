// Package reconciler recomputes the number of end-of-life frameworks used by
// every service in the catalog and writes it back onto the service.
//
// One pass lists the frameworks once, indexes them by identifier, then walks
// the services in catalog order. A failure to read either blueprint aborts the
// pass before anything is written; a failure on one service, including a
// service entity without an identifier, is recorded and the pass moves on to
// the next.
package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
	"github.com/agentstation/eolsync/pkg/port"
)

// Catalog is the subset of the catalog client a pass needs.
// *port.Client satisfies it.
type Catalog interface {
	ListEntities(ctx context.Context, blueprint string) ([]port.Entity, error)
	UpdateEntityProperty(ctx context.Context, blueprint, id, property string, value any) (*port.Entity, error)
}

// Reconciler runs reconciliation passes against a catalog.
type Reconciler struct {
	catalog Catalog
	opts    *options
}

// New creates a new Reconciler with options.
func New(catalog Catalog, opts ...Option) (*Reconciler, error) {
	if catalog == nil {
		return nil, errors.NewConfigError("reconciler", "catalog cannot be nil", nil)
	}
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Reconciler{catalog: catalog, opts: options}, nil
}

// Run performs one reconciliation pass.
//
// Errors that stop the pass before any update (listing frameworks or
// services, a malformed framework) are returned with a nil Result. Once
// updates start, the Result is always returned; per-service failures are
// reported through Result.Err and a cancelled context stops the loop and is
// returned alongside the partial Result.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	logger := r.logger(ctx)
	ctx = logging.WithLogger(ctx, logger)

	result := NewResult(logging.RunID(ctx), r.opts.dryRun)

	states, err := r.frameworkStates(ctx)
	if err != nil {
		return nil, err
	}
	result.Frameworks = len(states)

	services, err := r.catalog.ListEntities(ctx, r.opts.serviceBlueprint)
	if err != nil {
		return nil, errors.WrapUnexpected("list services", err)
	}
	logger.Info().
		Int("frameworks", len(states)).
		Int("services", len(services)).
		Bool("dry_run", r.opts.dryRun).
		Msg("Reconciling services")

	for i := range services {
		if err := ctx.Err(); err != nil {
			result.Finalize()
			return result, errors.WrapUnexpected("reconcile services", err)
		}
		result.record(r.reconcileService(ctx, i, &services[i], states))
	}

	result.Finalize()
	logger.Info().
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg(result.Summary())
	return result, nil
}

func (r *Reconciler) logger(ctx context.Context) *zerolog.Logger {
	if r.opts.logger != nil {
		return r.opts.logger
	}
	return logging.FromContext(ctx)
}

// frameworkStates lists the frameworks and indexes their states.
func (r *Reconciler) frameworkStates(ctx context.Context) (StateMap, error) {
	frameworks, err := r.catalog.ListEntities(ctx, r.opts.frameworkBlueprint)
	if err != nil {
		return nil, errors.WrapUnexpected("list frameworks", err)
	}
	states, err := BuildStateMap(frameworks, r.opts.stateProperty)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug().
		Int("count", len(states)).
		Msg("Built framework state map")
	return states, nil
}

// reconcileService computes and writes the count for one service.
func (r *Reconciler) reconcileService(ctx context.Context, index int, svc *port.Entity, states StateMap) ServiceResult {
	logger := logging.FromContext(logging.WithService(ctx, svc.Identifier))
	sr := ServiceResult{ServiceID: svc.Identifier}

	if svc.Identifier == "" {
		sr.Err = errors.NewSchemaError(r.opts.serviceBlueprint, "", "identifier",
			fmt.Sprintf("entity at index %d has no identifier", index))
		logger.Error().Err(sr.Err).Int("index", index).Msg("Skipping service without identifier")
		return sr
	}

	ids, err := svc.RelationIDs(r.opts.relation)
	if err != nil {
		sr.Err = err
		logger.Error().Err(err).Msg("Skipping service with malformed relation")
		return sr
	}
	sr.Frameworks = len(ids)
	sr.EOLCount = CountEOL(ids, states)

	if r.opts.dryRun {
		logger.Info().
			Int("frameworks", sr.Frameworks).
			Int("eol_count", sr.EOLCount).
			Msg("Computed EOL count (dry run)")
		return sr
	}

	if _, err := r.catalog.UpdateEntityProperty(ctx, r.opts.serviceBlueprint, svc.Identifier, r.opts.property, sr.EOLCount); err != nil {
		sr.Err = errors.WrapUnexpected("update service", err)
		logger.Error().Err(sr.Err).
			Str("category", string(errors.Classify(sr.Err))).
			Msg("Failed to update service")
		return sr
	}

	sr.Updated = true
	logger.Info().
		Int("frameworks", sr.Frameworks).
		Int("eol_count", sr.EOLCount).
		Msg("Updated service")
	return sr
}
