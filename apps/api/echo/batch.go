package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core/batch"
)

type batchApi struct {
	ledger *batch.Ledger
}

func registerBatchAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := batchApi{ledger: deps.Ledger}

	bg := g.Group("/batch", jwt)
	bg.GET("/failures", api.queryFailures, adminMiddleware())
}

// queryFailures lists the failure ledger, including records frozen at the
// attempt cap, so operators can see what needs manual intervention.
func (api *batchApi) queryFailures(ctx echo.Context) error {
	jobName := ctx.QueryParam("job")
	if jobName != "" {
		if _, err := batch.KindFromString(jobName); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	recs, err := api.ledger.Failures(ctx.Request().Context(), jobName)
	if err != nil {
		return errors.Wrap(err, "querying batch failures")
	}
	if recs == nil {
		recs = []batch.FailureRecord{}
	}
	return ctx.JSON(http.StatusOK, recs)
}
