package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/setting"
)

type settingApi struct {
	svc setting.Service
}

func registerSettingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc setting.Service) {
	api := settingApi{svc: svc}

	g.GET("/settings", api.retrieve)
	g.PUT("/settings", api.update, jwt, adminMiddleware())
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) update(ctx echo.Context) error {
	var data setting.UpdateSettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	s, err := api.svc.Update(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, s)
}
