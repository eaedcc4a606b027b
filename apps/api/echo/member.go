package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/photo"
	"github.com/pgri-okutimur/anggota/core/user"
)

const photoFormField = "photo"

var errMemberNotFoundInCtx = errors.New("member object not found in echo.Context")

type memberApi struct {
	svc    member.Service
	usrSvc user.Service
}

func registerMemberAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc member.Service, usrSvc user.Service) {
	api := memberApi{svc: svc, usrSvc: usrSvc}

	g.GET("/officers", api.officers)

	mg := g.Group("/members")

	// un-authed endpoints
	mg.POST("/register", api.register)

	// authed endpoints
	ag := mg.Group("", jwt)
	ag.POST("", api.create, adminMiddleware())
	ag.GET("", api.query, adminMiddleware())
	ag.DELETE("", api.destroyMultiple, adminMiddleware())
	ag.GET("/me", api.me)

	// detail endpoints
	dg := ag.Group("/:id", memberOwnerOrAdminMiddleware(api.svc, api.usrSvc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/approve", api.approve, adminMiddleware())
	dg.POST("/reject", api.reject, adminMiddleware())
	dg.GET("/card", api.card)
	dg.POST("/photo", api.uploadPhoto)
}

func contextMember(ctx echo.Context) (member.Member, error) {
	m, ok := ctx.Get(contextObjectKey).(member.Member)
	if !ok {
		return member.Member{}, errors.Wrap(errMemberNotFoundInCtx, "retrieving object from context")
	}
	return m, nil
}

// Handlers

func (api *memberApi) register(ctx echo.Context) error {
	var data member.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	m, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

// create records a member without an account, e.g. from a paper form.
func (api *memberApi) create(ctx echo.Context) error {
	var data member.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	m, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *memberApi) query(ctx echo.Context) error {
	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.Member{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *memberApi) officers(ctx echo.Context) error {
	members, err := api.svc.Officers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying officers")
	}

	type officer struct {
		FullName        string `json:"full_name"`
		OfficerPosition string `json:"officer_position"`
		School          string `json:"school"`
		PhotoURL        string `json:"photo_url,omitempty"`
	}
	officers := make([]officer, 0, len(members))
	for _, m := range members {
		officers = append(officers, officer{
			FullName:        m.FullName,
			OfficerPosition: m.OfficerPosition,
			School:          m.School,
			PhotoURL:        m.PhotoURL,
		})
	}
	return ctx.JSON(http.StatusOK, officers)
}

func (api *memberApi) me(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, err := api.svc.GetByUser(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		if errors.Cause(err) == member.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding member by user")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) retrieve(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) update(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}

	var data member.UpdateMember
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMember")
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	m, err = api.svc.Update(ctx.Request().Context(), m, data, ctxUsr)
	if err != nil {
		if errors.Cause(err) == member.ErrPermissionDenied {
			return errHttpForbidden
		}
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) destroy(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), m.ID); err != nil {
		return errors.Wrap(err, "deleting member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting members")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memberApi) approve(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, err = api.svc.Approve(ctx.Request().Context(), m, ctxUsr)
	if err != nil {
		return errors.Wrap(err, "approving member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) reject(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}
	var data member.Rejection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}
	m, err = api.svc.Reject(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "rejecting member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) card(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}
	card, err := api.svc.Card(ctx.Request().Context(), m)
	if err != nil {
		return errors.Wrap(err, "building member card")
	}
	return ctx.JSON(http.StatusOK, card)
}

func (api *memberApi) uploadPhoto(ctx echo.Context) error {
	m, err := contextMember(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile(photoFormField)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: photoFormField, Error: "this field is required"})
	}
	if fh.Size > photo.MaxSize {
		return core.NewValidationError(photo.ErrTooLarge, core.FieldError{Field: photoFormField, Error: photo.ErrTooLarge.Error()})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded photo")
	}
	defer f.Close()

	m, err = api.svc.SetPhoto(ctx.Request().Context(), m, f)
	if err != nil {
		return errors.Wrap(err, "saving member photo")
	}
	return ctx.JSON(http.StatusOK, m)
}
