package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/region"
)

type regionApi struct {
	svc region.Service
}

// registerRegionAPI mounts the public master-data endpoints feeding the cascading location selects.
func registerRegionAPI(g *echo.Group, svc region.Service) {
	api := regionApi{svc: svc}

	g.GET("/provinces", api.provinces)
	g.GET("/regencies", api.children(region.TierRegency, "provinceId", "regencies"))
	g.GET("/districts", api.children(region.TierDistrict, "regencyId", "districts"))
	g.GET("/villages", api.children(region.TierVillage, "districtId", "villages"))
}

func regionFailure(ctx echo.Context, code int, msg string) error {
	return ctx.JSON(code, echo.Map{"success": false, "error": msg})
}

func (api *regionApi) provinces(ctx echo.Context) error {
	units, err := api.svc.Provinces(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing provinces")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "provinces": units})
}

func (api *regionApi) children(tier region.Tier, param, key string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		raw := ctx.QueryParam(param)
		if raw == "" {
			return regionFailure(ctx, http.StatusBadRequest, param+" is required")
		}
		parentID, err := strconv.Atoi(raw)
		if err != nil || parentID <= 0 {
			return regionFailure(ctx, http.StatusBadRequest, param+" must be a positive integer")
		}

		units, err := api.svc.Children(ctx.Request().Context(), tier, parentID)
		if err != nil {
			return errors.Wrapf(err, "listing %s", tier.Plural())
		}
		return ctx.JSON(http.StatusOK, echo.Map{"success": true, key: units})
	}
}
