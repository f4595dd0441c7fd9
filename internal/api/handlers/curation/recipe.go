package curation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recipe-curator/internal/core/commit"
	"recipe-curator/internal/pkg/common"
)

// HandleGetRecipe 讀取已提交的食譜
func (h *Handler) HandleGetRecipe(c *gin.Context) {
	recipe, err := h.recipes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if recipe == nil {
		common.AbortWithError(c, common.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// HandleGetIngredient 以正規化鍵讀取主目錄條目
func (h *Handler) HandleGetIngredient(c *gin.Context) {
	entry, err := h.entries.FindByNormalizedKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if entry == nil {
		common.AbortWithError(c, common.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ReviseRequest 食譜修訂請求
type ReviseRequest struct {
	Title        *string  `json:"title"`
	Category     *string  `json:"category"`
	Instructions []string `json:"instructions"`
}

// HandleReviseRecipe 對已提交的食譜發佈新修訂
func (h *Handler) HandleReviseRecipe(c *gin.Context) {
	var req ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.AbortWithError(c, common.ErrInvalidRequest)
		return
	}

	recipe, err := h.commits.Revise(c.Request.Context(), c.Param("id"), &commit.RecipeEdit{
		Title:        req.Title,
		Category:     req.Category,
		Instructions: req.Instructions,
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recipe)
}
