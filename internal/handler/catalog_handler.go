package handler

import (
	"net/http"
	"strconv"

	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// 認証ミドルウェアが入れたユーザーIDを取り出す
func getUserIDFromContext(c echo.Context) (string, bool) {
	raw := c.Get(middleware.CtxUserIDKey)
	userID, ok := raw.(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// /inventory の公開API（閲覧・検索）
type CatalogHandler struct {
	uc *usecase.CatalogUsecase
}

// DI
func NewCatalogHandler(uc *usecase.CatalogUsecase) *CatalogHandler {
	return &CatalogHandler{uc: uc}
}

// 公開在庫のルートを登録
func (h *CatalogHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/inventory")

	g.GET("/items", h.list)
	g.GET("/items/:id", h.detail)
	g.GET("/items/category/:category", h.listByCategory)
	g.GET("/items/:id/stock-check", h.stockCheck)
	g.GET("/categories", h.categories)
	g.GET("/search", h.search)
}

func (h *CatalogHandler) list(c echo.Context) error {
	in, err := bindListInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.ListItems(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) listByCategory(c echo.Context) error {
	in, err := bindListInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	in.Category = c.Param("category")

	out, err := h.uc.ListItems(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) search(c echo.Context) error {
	in, err := bindListInput(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	in.Q = c.QueryParam("q")

	out, err := h.uc.ListItems(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	p, err := h.uc.GetItem(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) categories(c echo.Context) error {
	out, err := h.uc.ListCategories(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) stockCheck(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	qty := int64(1)
	if v := c.QueryParam("quantity"); v != "" {
		q, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid quantity"})
		}
		qty = q
	}

	ok, err := h.uc.StockCheck(c.Request().Context(), id, qty)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"inStock": ok})
}

// page/limit/sortの共通クエリ
func bindListInput(c echo.Context) (usecase.ListItemsInput, error) {
	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return usecase.ListItemsInput{}, errInvalidQuery("invalid page")
		}
		page = p
	}

	// limit（default 20）
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return usecase.ListItemsInput{}, errInvalidQuery("invalid limit")
		}
		limit = l
	}

	return usecase.ListItemsInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		Category: c.QueryParam("category"),
		Sort:     c.QueryParam("sort"),
	}, nil
}

type queryError string

func (e queryError) Error() string { return string(e) }

func errInvalidQuery(msg string) error { return queryError(msg) }
