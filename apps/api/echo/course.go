package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core/course"
)

type courseApi struct {
	svc      *course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, adminMiddleware())
	cg.DELETE("/:id", api.destroy, adminMiddleware())

	eg := g.Group("/enrolments", jwt)
	eg.GET("", api.queryEnrolments, adminMiddleware())
	eg.POST("", api.enrol, adminMiddleware())
	eg.PUT("/:id/progress", api.setProgress, adminMiddleware())
	eg.DELETE("/:id", api.withdraw, adminMiddleware())
}

func courseID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := courseID(ctx)
	if err != nil {
		return err
	}

	crs, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	id, err := courseID(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	id, err := courseID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) enrol(ctx echo.Context) error {
	var data course.NewEnrolment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrolment")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate); err != nil {
		return err
	}

	enr, err := api.svc.Enrol(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) queryEnrolments(ctx echo.Context) error {
	filter := new(course.EnrolmentFilter)
	if userID, err := strconv.Atoi(ctx.QueryParam("user_id")); err == nil {
		filter.UserID = userID
	}
	if crsID, err := strconv.Atoi(ctx.QueryParam("course_id")); err == nil {
		filter.CourseID = crsID
	}

	enrolments, err := api.svc.QueryEnrolments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying enrolments")
	}
	if enrolments == nil {
		enrolments = []course.Enrolment{}
	}
	return ctx.JSON(http.StatusOK, enrolments)
}

func (api *courseApi) setProgress(ctx echo.Context) error {
	id, err := courseID(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProgress")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate); err != nil {
		return err
	}

	enr, err := api.svc.SetProgress(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == course.ErrEnrolmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "setting progress")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) withdraw(ctx echo.Context) error {
	id, err := courseID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Withdraw(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == course.ErrEnrolmentNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "withdrawing enrolment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
