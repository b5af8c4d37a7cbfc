package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initCatalogRoutes registers the read-only catalog endpoints.
func (c *Controller) initCatalogRoutes() {
	cat := c.Group.Group("/catalog")
	cat.GET("/persons", c.ListPersons)
	cat.GET("/vehicles", c.ListVehicles)
}

// ListPersons returns every person that can be watched.
func (c *Controller) ListPersons(ctx echo.Context) error {
	persons, err := c.catalog.ListPersons(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list persons", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"persons": persons,
		"count":   len(persons),
	})
}

// ListVehicles returns every vehicle that can be watched.
func (c *Controller) ListVehicles(ctx echo.Context) error {
	vehicles, err := c.catalog.ListVehicles(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list vehicles", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}
