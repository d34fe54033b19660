package server

import (
	"net/http"

	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Newはルーティング済みのechoエンジンを返す
func New(
	cfg config.Config,
	catalogH *handler.CatalogHandler,
	cartH *handler.CartHandler,
	orderH *handler.OrderHandler,
	inventoryH *handler.InventoryHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	//フロントが指定されている時だけCORSを開く
	if cfg.FEURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{cfg.FEURL},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Idempotency-Key"},
		}))
	}

	RegisterRoutes(e, cfg, catalogH, cartH, orderH, inventoryH)

	return e
}

func Start(e *echo.Echo, port string) error {
	return e.Start(":" + port)
}
