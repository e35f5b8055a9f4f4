package handler

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	securityScheme = "apiKey"
	apiKeyHeader   = "api_key"
	metaAccess     = "access"
)

type level uint8

const (
	levelPublic level = iota
	// levelCustomer admits any valid key; the key subject owns the cart,
	// wishlist and orders touched by the request.
	levelCustomer
	levelAdmin
)

// access is the requirement attached to an operation.
type access struct {
	level level
	perm  string
}

var (
	public   = access{level: levelPublic}
	customer = access{level: levelCustomer}
)

func admin(perm string) access {
	return access{level: levelAdmin, perm: perm}
}

var errForbidden = apperr.New(apperr.KindForbidden, "Not authorized to access this resource")

// apiKey reads the key from the api_key header or a bearer token.
func apiKey(ctx huma.Context) string {
	if k := strings.TrimSpace(ctx.Header(apiKeyHeader)); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// authenticate resolves the caller of protected operations and enforces the
// level and permission recorded in the operation metadata.
func (h *Handler) authenticate(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		need, _ := ctx.Operation().Metadata[metaAccess].(access)
		if need.level == levelPublic {
			next(ctx)
			return
		}

		p, err := h.svc.Keys.Authenticate(ctx.Context(), apiKey(ctx))
		if err != nil {
			h.writeErr(api, ctx, err)
			return
		}
		if need.level == levelAdmin && !p.IsAdmin() {
			h.writeErr(api, ctx, errForbidden)
			return
		}
		if need.perm != "" && !p.Can(need.perm) {
			h.writeErr(api, ctx, errForbidden)
			return
		}
		next(huma.WithContext(ctx, auth.WithPrincipal(ctx.Context(), p)))
	}
}

func (h *Handler) writeErr(api huma.API, ctx huma.Context, err error) {
	se := h.fail(ctx.Context(), err)
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(se.Status)
	if err := api.Marshal(ctx.BodyWriter(), "application/json", se); err != nil {
		zctx.From(ctx.Context()).Warn("Write error response", zap.Error(err))
	}
}

// principal returns the caller set by authenticate. Operations registered
// with a non-public access always have one.
func principal(ctx context.Context) *auth.Principal {
	p, _ := auth.FromContext(ctx)
	if p == nil {
		return &auth.Principal{}
	}
	return p
}
