package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/relivv-escrow/api/middleware"
	"github.com/angelmondragon/relivv-escrow/api/validators"
	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/pagination"
)

func requireActor(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}

func parsePage(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
