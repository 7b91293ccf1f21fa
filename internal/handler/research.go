package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/service"
	"github.com/opendeepwiki/deepresearch/internal/service/runner"
)

type ResearchHandler struct {
	service *service.ResearchService
}

func NewResearchHandler(service *service.ResearchService) *ResearchHandler {
	return &ResearchHandler{service: service}
}

func (h *ResearchHandler) Create(c *gin.Context) {
	var req service.CreateResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTopic), errors.Is(err, domain.ErrSequencing):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrRunnerStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "session": session})
		default:
			klog.Errorf("[ResearchHandler.Create] 创建会话失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, session)
}

func (h *ResearchHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := h.service.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *ResearchHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "research session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *ResearchHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !h.service.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session is not queued or running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancel requested", "id": id})
}

func (h *ResearchHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.QueueStatus())
}
