package server

import (
	"net/http"

	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(
	e *echo.Echo,
	cfg config.Config,
	catalogH *handler.CatalogHandler,
	cartH *handler.CartHandler,
	orderH *handler.OrderHandler,
	inventoryH *handler.InventoryHandler,
) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	catalogH.RegisterRoutes(e)
	cartH.RegisterRoutes(e, cfg)
	orderH.RegisterRoutes(e, cfg)
	inventoryH.RegisterRoutes(e, cfg)
}
