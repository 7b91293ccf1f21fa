package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opendeepwiki/deepresearch/internal/service"
)

type ThreatModelHandler struct {
	service *service.ThreatModelService
}

func NewThreatModelHandler(service *service.ThreatModelService) *ThreatModelHandler {
	return &ThreatModelHandler{service: service}
}

type validateRequest struct {
	Document string `json:"document" binding:"required"`
	Diagram  string `json:"diagram"`
}

func (h *ThreatModelHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.service.Validate(req.Document, req.Diagram)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ThreatModelHandler) Get(c *gin.Context) {
	tm, err := h.service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrThreatModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "threat model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tm)
}

func (h *ThreatModelHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.service.List(c.Query("repo_url"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}
