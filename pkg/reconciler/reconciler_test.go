package reconciler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
	"github.com/agentstation/eolsync/pkg/port"
	"github.com/agentstation/eolsync/pkg/port/porttest"
	"github.com/agentstation/eolsync/pkg/reconciler"
)

const property = "number_of_eol_packages"

func newCatalog(t *testing.T) (*porttest.Server, *port.Client) {
	t.Helper()
	srv := porttest.NewServer(t)
	client, err := port.New(port.Config{BaseURL: srv.URL, Token: porttest.StaticToken})
	require.NoError(t, err)
	return srv, client
}

func run(t *testing.T, catalog reconciler.Catalog, opts ...reconciler.Option) (*reconciler.Result, error) {
	t.Helper()
	opts = append([]reconciler.Option{reconciler.WithLogger(logging.NewNopLogger())}, opts...)
	r, err := reconciler.New(catalog, opts...)
	require.NoError(t, err)
	return r.Run(context.Background())
}

// patchedCounts returns service id -> written count, in request order.
func patchedCounts(t *testing.T, srv *porttest.Server) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	for _, p := range srv.Patches() {
		n, ok := p.Int(property)
		require.True(t, ok, "patch for %s carries %s", p.ID, property)
		counts[p.ID] = n
	}
	return counts
}

func TestScenarioOneEOLOneActive(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"), porttest.Framework("F2", "Active"))
	srv.SetEntities("service", porttest.Service("S1", "framework", "F1", "F2"))

	result, err := run(t, client)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, map[string]int{"S1": 1}, patchedCounts(t, srv))
	require.Len(t, result.Services, 1)
	assert.Equal(t, reconciler.ServiceResult{ServiceID: "S1", Frameworks: 2, EOLCount: 1, Updated: true}, result.Services[0])
}

func TestScenarioDuplicateRelation(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service", porttest.Service("S2", "framework", "F1", "F1"))

	_, err := run(t, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S2": 2}, patchedCounts(t, srv))
}

func TestScenarioNoRelation(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service", porttest.Service("S3", "framework"))

	result, err := run(t, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S3": 0}, patchedCounts(t, srv), "update is still issued")
	assert.Equal(t, 1, result.Updated)
}

func TestScenarioFrameworkFetchFails(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("service", porttest.Service("S1", "framework", "F1"))
	srv.Fail(http.MethodGet, "/v1/blueprints/framework/entities", http.StatusBadGateway)

	tl := logging.NewTestLogger(t)
	r, err := reconciler.New(client, reconciler.WithLogger(tl.Logger))
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, errors.CategoryTransport, errors.Classify(err))
	assert.Empty(t, srv.Patches(), "no service may be updated")
	assert.NotContains(t, srv.Requests(), "GET /v1/blueprints/service/entities")
	assert.Equal(t, 0, tl.CountContaining(`"level":"error"`), "the caller reports the failure")
}

func TestServiceFetchFailsBeforeAnyUpdate(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.Fail(http.MethodGet, "/v1/blueprints/service/entities", http.StatusInternalServerError)

	result, err := run(t, client)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsTransport(err))
	assert.Empty(t, srv.Patches())
}

func TestMalformedFrameworkAbortsPass(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", port.Entity{Identifier: "F1", Properties: map[string]any{}})
	srv.SetEntities("service", porttest.Service("S1", "framework", "F1"))

	_, err := run(t, client)
	require.Error(t, err)
	assert.True(t, errors.IsSchema(err))
	assert.Empty(t, srv.Patches())
}

func TestCaseSensitiveState(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "eol"), porttest.Framework("F2", "EOL"))
	srv.SetEntities("service", porttest.Service("S1", "framework", "F1", "F2"))

	_, err := run(t, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S1": 1}, patchedCounts(t, srv))
}

func TestUnknownFrameworkCountsZero(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service", porttest.Service("S1", "framework", "F9", "F1"))

	_, err := run(t, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S1": 1}, patchedCounts(t, srv))
}

func TestPassIsIdempotent(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework",
		porttest.Framework("F1", "EOL"),
		porttest.Framework("F2", "Active"),
		porttest.Framework("F3", "EOL"),
	)
	srv.SetEntities("service",
		porttest.Service("S1", "framework", "F1", "F2", "F3"),
		porttest.Service("S2", "framework", "F2"),
		porttest.Service("S3", "framework"),
	)

	first, err := run(t, client)
	require.NoError(t, err)
	firstPatches := srv.Patches()

	second, err := run(t, client)
	require.NoError(t, err)
	secondPatches := srv.Patches()[len(firstPatches):]

	require.Len(t, secondPatches, len(firstPatches))
	for i := range firstPatches {
		assert.Equal(t, firstPatches[i].ID, secondPatches[i].ID)
		assert.Equal(t, firstPatches[i].Properties, secondPatches[i].Properties)
	}
	assert.Equal(t, first.Services, second.Services)
}

func TestServicesProcessedInCatalogOrder(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service",
		porttest.Service("zeta", "framework", "F1"),
		porttest.Service("alpha", "framework"),
		porttest.Service("mu", "framework", "F1", "F1"),
	)

	_, err := run(t, client)
	require.NoError(t, err)

	var order []string
	for _, p := range srv.Patches() {
		order = append(order, p.ID)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mu"}, order)
}

func TestDryRunIssuesNoUpdates(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service", porttest.Service("S1", "framework", "F1"))

	result, err := run(t, client, reconciler.WithDryRun(true))
	require.NoError(t, err)
	assert.Empty(t, srv.Patches())
	assert.True(t, result.DryRun)
	require.Len(t, result.Services, 1)
	assert.Equal(t, 1, result.Services[0].EOLCount)
	assert.False(t, result.Services[0].Updated)
	assert.Equal(t, 0, result.Updated)
	assert.True(t, result.IsSuccess())
}

func TestCustomBlueprintsAndRelation(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("library", port.Entity{Identifier: "L1", Properties: map[string]any{"lifecycle": "EOL"}})
	srv.SetEntities("microservice", porttest.Service("M1", "libraries", "L1"))

	_, err := run(t, client,
		reconciler.WithFrameworkBlueprint("library"),
		reconciler.WithServiceBlueprint("microservice"),
		reconciler.WithRelation("libraries"),
		reconciler.WithStateProperty("lifecycle"),
		reconciler.WithProperty("eol_libraries"),
	)
	require.NoError(t, err)

	patches := srv.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, "microservice", patches[0].Blueprint)
	n, ok := patches[0].Int("eol_libraries")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestSingleValuedRelation(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service", port.Entity{
		Identifier: "S1",
		Relations:  map[string]json.RawMessage{"framework": json.RawMessage(`"F1"`)},
	})

	_, err := run(t, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S1": 1}, patchedCounts(t, srv))
}

func TestMalformedRelationIsIsolated(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service",
		port.Entity{Identifier: "bad", Relations: map[string]json.RawMessage{"framework": json.RawMessage(`42`)}},
		porttest.Service("good", "framework", "F1"),
	)

	tl := logging.NewTestLogger(t)
	r, err := reconciler.New(client, reconciler.WithLogger(tl.Logger))
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"good": 1}, patchedCounts(t, srv))
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Updated)

	syncErr := result.Err()
	require.Error(t, syncErr)
	assert.True(t, errors.Is(syncErr, errors.ErrPartialSync))
	assert.Equal(t, errors.CategorySchema, errors.Classify(syncErr))
	assert.Equal(t, 1, tl.CountContaining(`"service":"bad"`))
}

func TestUpdateFailureIsIsolated(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service",
		porttest.Service("S1", "framework", "F1"),
		porttest.Service("S2", "framework", "F1"),
		porttest.Service("S3", "framework"),
	)
	srv.Fail(http.MethodPatch, "/v1/blueprints/service/entities/S2", http.StatusUnprocessableEntity)

	result, err := run(t, client)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"S1": 1, "S3": 0}, patchedCounts(t, srv))
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Services[1].Updated)
	assert.NotEmpty(t, result.Services[1].Error)

	var syncErr *errors.SyncError
	require.ErrorAs(t, result.Err(), &syncErr)
	assert.Equal(t, 1, syncErr.Failed)
	assert.Equal(t, 3, syncErr.Total)
	assert.Contains(t, syncErr.Errs, "S2")
	assert.Equal(t, errors.CategoryTransport, errors.Classify(syncErr))
}

func TestOpenBreakerFailsRemainingServices(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))

	var services []port.Entity
	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("S%d", i)
		services = append(services, porttest.Service(id, "framework", "F1"))
		if i <= 5 {
			srv.Fail(http.MethodPatch, "/v1/blueprints/service/entities/"+id, http.StatusServiceUnavailable)
		}
	}
	srv.SetEntities("service", services...)

	result, err := run(t, client)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 7, result.Failed)
	require.Len(t, result.Services, 7)

	var patches int
	for _, req := range srv.Requests() {
		if strings.HasPrefix(req, http.MethodPatch+" ") {
			patches++
		}
	}
	assert.Equal(t, 5, patches, "calls after the breaker opens never reach the catalog")

	for _, sr := range result.Services[:5] {
		var te *errors.TransportError
		require.ErrorAs(t, sr.Err, &te, sr.ServiceID)
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	}
	for _, sr := range result.Services[5:] {
		assert.False(t, sr.Updated)
		assert.ErrorIs(t, sr.Err, gobreaker.ErrOpenState, sr.ServiceID)
		assert.True(t, errors.IsTransport(sr.Err))
	}

	var syncErr *errors.SyncError
	require.ErrorAs(t, result.Err(), &syncErr)
	assert.Len(t, syncErr.Errs, 7)
	assert.Equal(t, errors.CategoryTransport, errors.Classify(syncErr))
}

func TestServiceWithoutIdentifierIsIsolated(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service",
		porttest.Service("", "framework", "F1"),
		porttest.Service("S1", "framework", "F1"),
	)

	result, err := run(t, client)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"S1": 1}, patchedCounts(t, srv))
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)

	var se *errors.SchemaError
	require.ErrorAs(t, result.Services[0].Err, &se)
	assert.Equal(t, "identifier", se.Field)
	assert.Equal(t, "service", se.Blueprint)

	var syncErr *errors.SyncError
	require.ErrorAs(t, result.Err(), &syncErr)
	assert.Contains(t, syncErr.Errs, "[index 0]")
	assert.Equal(t, errors.CategorySchema, errors.Classify(syncErr))
}

// cancellingCatalog cancels the pass after the first update.
type cancellingCatalog struct {
	reconciler.Catalog
	cancel  context.CancelFunc
	updates int
}

func (c *cancellingCatalog) UpdateEntityProperty(ctx context.Context, bp, id, prop string, v any) (*port.Entity, error) {
	c.updates++
	c.cancel()
	return &port.Entity{Identifier: id}, nil
}

func TestCancellationStopsLoop(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework", porttest.Framework("F1", "EOL"))
	srv.SetEntities("service",
		porttest.Service("S1", "framework", "F1"),
		porttest.Service("S2", "framework", "F1"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	catalog := &cancellingCatalog{Catalog: client, cancel: cancel}

	r, err := reconciler.New(catalog, reconciler.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Len(t, result.Services, 1)
	assert.Equal(t, 1, catalog.updates)
}

func TestRunIDFromContext(t *testing.T) {
	srv, client := newCatalog(t)
	srv.SetEntities("framework")

	r, err := reconciler.New(client, reconciler.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)

	result, err := r.Run(logging.WithRunID(context.Background(), "run-123"))
	require.NoError(t, err)
	assert.Equal(t, "run-123", result.RunID)
	assert.Empty(t, result.Services)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := reconciler.New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))

	_, client := newCatalog(t)
	for name, opt := range map[string]reconciler.Option{
		"relation":            reconciler.WithRelation(""),
		"service blueprint":   reconciler.WithServiceBlueprint(""),
		"framework blueprint": reconciler.WithFrameworkBlueprint(""),
		"property":            reconciler.WithProperty(""),
		"state property":      reconciler.WithStateProperty(""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := reconciler.New(client, opt)
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestResultSummary(t *testing.T) {
	result := reconciler.NewResult("", false)
	assert.Equal(t, "Reconciliation successful. 0 services updated.", result.Summary())

	dry := reconciler.NewResult("", true)
	assert.Contains(t, dry.Summary(), "Dry run completed")
}
