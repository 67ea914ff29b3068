package handlers

import (
	"errors"
	"net/http"
	"strings"

	"library_pos_backend/internal/capture"
	"library_pos_backend/internal/decode"
	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type stopRequest struct {
	Reason string `json:"reason"`
}

// ScanHandler drives the operator's capture sessions and the decode endpoint.
type ScanHandler struct {
	scanService services.ScanService
	decoder     decode.Gateway
}

func NewScanHandler(ss services.ScanService, decoder decode.Gateway) *ScanHandler {
	return &ScanHandler{scanService: ss, decoder: decoder}
}

// scanTarget reads the operator and the :target path segment.
func scanTarget(c *gin.Context) (string, capture.Target, bool) {
	operator, ok := currentOperator(c)
	if !ok {
		return "", "", false
	}
	target, err := capture.ParseTarget(c.Param("target"))
	if err != nil {
		respondServiceError(c, err, "Unknown scan target.")
		return "", "", false
	}
	return operator, target, true
}

// bindReason reads an optional {reason}; an empty body is allowed.
func bindReason(c *gin.Context, fallback string) (string, bool) {
	var req stopRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err, "StopScan")
			return "", false
		}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return fallback, true
	}
	return req.Reason, true
}

// StartScan opens a capture session, replacing any running one for the target.
func (h *ScanHandler) StartScan(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	status, err := h.scanService.Start(operator, target)
	if err != nil {
		respondServiceError(c, err, "Failed to start scanner.")
		return
	}
	c.JSON(http.StatusAccepted, status)
}

func (h *ScanHandler) StopScan(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c, "stopped by operator")
	if !ok {
		return
	}
	status, err := h.scanService.Stop(operator, target, reason)
	if err != nil {
		respondServiceError(c, err, "Failed to stop scanner.")
		return
	}
	c.JSON(http.StatusOK, status)
}

// StopAll releases every camera of the operator, e.g. on section switch or a
// hidden page.
func (h *ScanHandler) StopAll(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c, "section switch")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": h.scanService.StopAll(operator, reason)})
}

// GetScan polls the session. A routed barcode result is included only once.
func (h *ScanHandler) GetScan(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.scanService.Poll(operator, target))
}

// AttachCamera receives the browser's camera permission outcome.
func (h *ScanHandler) AttachCamera(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	var req capture.Attachment
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "AttachCamera")
		return
	}
	if err := h.scanService.AttachCamera(operator, target, req); err != nil {
		respondServiceError(c, err, "Failed to attach camera.")
		return
	}
	c.JSON(http.StatusOK, h.scanService.Status(operator, target))
}

// PushFrame receives one sampled frame and answers with the zoom and torch
// settings the browser should apply.
func (h *ScanHandler) PushFrame(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	var req services.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "PushFrame")
		return
	}
	controls, err := h.scanService.PushFrame(operator, target, req.Image)
	if err != nil {
		respondServiceError(c, err, "Failed to accept frame.")
		return
	}
	c.JSON(http.StatusOK, controls)
}

func (h *ScanHandler) ToggleTorch(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	on, err := h.scanService.ToggleTorch(operator, target)
	if err != nil {
		respondServiceError(c, err, "Failed to toggle torch.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"torch_on": on})
}

// ManualScan routes a typed barcode as if it had been scanned.
func (h *ScanHandler) ManualScan(c *gin.Context) {
	operator, target, ok := scanTarget(c)
	if !ok {
		return
	}
	var req services.ManualScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, "ManualScan")
		return
	}
	result, err := h.scanService.Manual(c.Request.Context(), operator, target, req.Barcode)
	if err != nil {
		respondServiceError(c, err, "Failed to process barcode.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScanBarcode decodes one image. Its request and response bodies are the
// contract the remote decoder speaks, so other instances can use this server
// as their decode backend.
func (h *ScanHandler) ScanBarcode(c *gin.Context) {
	var req decode.DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "ScanBarcode: Failed to bind JSON")
		c.JSON(http.StatusBadRequest, decode.DecodeResponse{Error: "No image data provided"})
		return
	}
	frame, err := decode.FrameFromDataURL(req.Image)
	if err != nil {
		utils.LogError(err, "ScanBarcode: invalid image")
		c.JSON(http.StatusBadRequest, decode.DecodeResponse{Error: err.Error()})
		return
	}
	frame.Target = req.Type

	result, found, err := h.decoder.Decode(c.Request.Context(), frame)
	switch {
	case errors.Is(err, decode.ErrInvalidFrame):
		c.JSON(http.StatusBadRequest, decode.DecodeResponse{Error: err.Error()})
	case err != nil:
		utils.LogError(err, "ScanBarcode: decode failed")
		c.JSON(http.StatusBadGateway, decode.DecodeResponse{Error: "Failed to decode image", Code: utils.ErrCodeBadGateway})
	case !found:
		c.JSON(http.StatusOK, decode.DecodeResponse{Detected: false})
	default:
		c.JSON(http.StatusOK, decode.DecodeResponse{Detected: true, Barcode: result.Barcode, Format: result.Format})
	}
}
