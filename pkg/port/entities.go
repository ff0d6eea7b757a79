package port

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agentstation/eolsync/internal/transport"
	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
)

type listEntitiesResponse struct {
	OK       bool      `json:"ok"`
	Entities *[]Entity `json:"entities"`
}

type updateEntityRequest struct {
	Properties map[string]any `json:"properties"`
}

type updateEntityResponse struct {
	OK     bool    `json:"ok"`
	Entity *Entity `json:"entity"`
}

// ListEntities returns every entity of the blueprint.
// A response without an entities field is a SchemaError. Entities without an
// identifier are returned as-is so callers can reject them one by one.
func (c *Client) ListEntities(ctx context.Context, blueprint string) ([]Entity, error) {
	path := fmt.Sprintf(constants.EntitiesPathFormat, url.PathEscape(blueprint))

	var out listEntitiesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out, transport.DecodeResponse); err != nil {
		return nil, err
	}
	if out.Entities == nil {
		return nil, errors.NewSchemaError(blueprint, "", "entities", "response has no entities field")
	}

	entities := *out.Entities
	for i := range entities {
		if entities[i].Blueprint == "" {
			entities[i].Blueprint = blueprint
		}
	}

	logging.FromContext(logging.WithBlueprint(ctx, blueprint)).Debug().
		Int("count", len(entities)).
		Msg("Listed entities")
	return entities, nil
}

// UpdateEntityProperty sets one property on one entity, leaving the others
// untouched. The updated entity is returned when the catalog echoes it; an
// empty 2xx answer such as 204 No Content yields a nil entity.
func (c *Client) UpdateEntityProperty(ctx context.Context, blueprint, id, property string, value any) (*Entity, error) {
	path := fmt.Sprintf(constants.EntityPathFormat, url.PathEscape(blueprint), url.PathEscape(id))
	body := updateEntityRequest{Properties: map[string]any{property: value}}

	var out updateEntityResponse
	if err := c.do(ctx, http.MethodPatch, path, body, &out, transport.DecodeOptionalResponse); err != nil {
		return nil, err
	}
	return out.Entity, nil
}

// decodeFunc reads a response into a target and closes its body.
type decodeFunc func(resp *http.Response, target any) error

// do performs one authenticated call. When the catalog answers 401/403 and
// the token source can renew, the token is dropped and the call is issued
// once more with a fresh one; a second rejection is an AuthError. A failed
// token exchange is already an AuthError and is returned without a retry.
func (c *Client) do(ctx context.Context, method, path string, body, target any, decode decodeFunc) error {
	err := c.doOnce(ctx, method, path, body, target, decode)
	if errors.IsAuth(err) || !errors.IsUnauthorized(err) {
		return err
	}

	if c.tokens.Invalidate() {
		logging.FromContext(ctx).Debug().
			Str("method", method).
			Str("path", path).
			Msg("Token rejected, re-authenticating")
		err = c.doOnce(ctx, method, path, body, target, decode)
		if errors.IsAuth(err) || !errors.IsUnauthorized(err) {
			return err
		}
	}

	ae := errors.NewAuthError(c.tokens.Method(), "catalog rejected the bearer token", err)
	var te *errors.TransportError
	if errors.As(err, &te) {
		ae.StatusCode = te.StatusCode
	}
	return ae
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, target any, decode decodeFunc) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := transport.NewJSONRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	resp, err := c.transport.DoWithContext(ctx, req, token)
	if err != nil {
		return err
	}
	return decode(resp, target)
}
