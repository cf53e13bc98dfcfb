package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

// getCategories always answers with at least the All category; a store
// failure is reported through the notice.
func getCategories(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := cats.GetAll(c.Request().Context())
		resp := categoriesResponse{Categories: list}
		if err != nil {
			c.Logger().Error(err)
			resp.Notice = err.Error()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getCategory(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		cat, err := cats.GetByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			return failure(c, err, "")
		}
		return c.JSON(http.StatusOK, cat)
	}
}

func getSubcategories(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		subs, err := cats.Subcategories(c.Request().Context(), c.QueryParam("parent"))
		if err != nil {
			return failure(c, err, "")
		}
		return c.JSON(http.StatusOK, subcategoriesResponse{Subcategories: subs})
	}
}

func createSubcategory(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.SubcategoryInput
		if err := decodeBody(c, &in); err != nil {
			return badRequest(c, "invalid body")
		}
		sub, err := cats.CreateSubcategory(c.Request().Context(), in)
		if err != nil {
			return failure(c, err, "")
		}
		return c.JSON(http.StatusCreated, sub)
	}
}

func updateSubcategory(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		var in domain.SubcategoryInput
		if err := decodeBody(c, &in); err != nil {
			return badRequest(c, "invalid body")
		}
		sub, err := cats.UpdateSubcategory(c.Request().Context(), id, in)
		if err != nil {
			return failure(c, err, "")
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func deleteSubcategory(cats CategoryService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := cats.DeleteSubcategory(c.Request().Context(), id); err != nil {
			return failure(c, err, "")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
