package course

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/kymoh/elimu/core"
)

func (nc *NewCourse) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	if err := validate.StructCtx(ctx, nc); err != nil {
		return err
	}
	return svc.checkCodeUniqueness(ctx, nc.Code)
}

func (uc *UpdateCourse) Validate(ctx context.Context, validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Code = core.CleanString(uc.Code, true /* lower */)
	return validate.StructCtx(ctx, uc)
}

func (ne NewEnrolment) Validate(ctx context.Context, validate *validator.Validate) error {
	return validate.StructCtx(ctx, ne)
}

func (up UpdateProgress) Validate(ctx context.Context, validate *validator.Validate) error {
	return validate.StructCtx(ctx, up)
}
