package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/OccDeser/uniclip/pkg/history"
	"github.com/OccDeser/uniclip/pkg/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClipboardRequest is the body of POST /api/v1/clipboard
type ClipboardRequest struct {
	Content string `json:"content" binding:"required"`
}

// ClipboardEntry is a history entry as the UI sees it
type ClipboardEntry struct {
	Seq     uint64    `json:"seq"`
	Content string    `json:"content"`
	Size    int       `json:"size"`
	AddedAt time.Time `json:"added_at"`
}

// Health check endpoint
func (s *APIServer) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Node handlers

func (s *APIServer) handleGetNodeInfo(c *gin.Context) {
	info := s.services.NodeService.GetNodeInfo()
	successResponse(c, info)
}

func (s *APIServer) handleGetPeers(c *gin.Context) {
	peers := s.services.NodeService.GetPeers()
	c.JSON(http.StatusOK, gin.H{
		"data":  peers,
		"count": len(peers),
	})
}

func (s *APIServer) handleDiscover(c *gin.Context) {
	sent, err := s.services.NodeService.Discover(c.Request.Context())
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}

	successResponse(c, gin.H{"pings_sent": sent})
}

// Clipboard handlers

func (s *APIServer) handleGetClipboard(c *gin.Context) {
	entries := s.services.HistoryService.Entries()

	result := make([]ClipboardEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, ClipboardEntry{
			Seq:     e.Seq,
			Content: string(e.Data),
			Size:    len(e.Data),
			AddedAt: e.AddedAt,
		})
	}

	successResponse(c, result)
}

func (s *APIServer) handleGetLatestClipboard(c *gin.Context) {
	data, err := s.services.HistoryService.Latest()
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}

	successResponse(c, gin.H{"content": string(data)})
}

// handleBroadcastClipboard sends content to every peer and records it in
// the local history
func (s *APIServer) handleBroadcastClipboard(c *gin.Context) {
	var req ClipboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	data := []byte(req.Content)
	report, err := s.services.NodeService.Broadcast(c.Request.Context(), data)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}

	s.services.HistoryService.Append(data)

	if len(report.Evicted) > 0 {
		s.logger.Info("Broadcast evicted peers",
			zap.Stringer("report", report))
	}

	c.JSON(http.StatusAccepted, APIResponse{
		Data:    report,
		Message: "clipboard broadcast",
	})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, types.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
