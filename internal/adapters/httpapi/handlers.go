package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suhail953/wattflow/internal/app/health"
	"github.com/suhail953/wattflow/internal/app/pipeline"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

const DefaultBodyLimit int64 = 10 << 20

// Ingester is the pipeline entry point used by the receive handler.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, origin domain.Origin) pipeline.Outcome
}

// HealthReporter builds the health snapshot.
type HealthReporter interface {
	Report(ctx context.Context) health.Snapshot
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type receiveResponse struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	ID         string    `json:"id"`
	Mac        string    `json:"mac"`
	DataPoints int       `json:"dataPoints"`
	ReceivedAt time.Time `json:"receivedAt"`
	Timestamp  time.Time `json:"timestamp"`
}

type handlers struct {
	ingester  Ingester
	health    HealthReporter
	obs       ports.Observability
	bodyLimit int64
	mqttAddr  string
}

func (h *handlers) receiveData(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bodyLimit)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Status: "error", Message: "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: "Unable to read request body"})
		return
	}

	out := h.ingester.Ingest(c.Request.Context(), body, domain.RequestOrigin())
	switch out.Kind {
	case pipeline.Committed:
		c.JSON(http.StatusCreated, receiveResponse{
			Status:     "success",
			Message:    "Data received and stored successfully",
			ID:         out.ID,
			Mac:        out.Mac,
			DataPoints: out.SampleCount,
			ReceivedAt: out.ReceivedAt,
			Timestamp:  out.ReceivedAt,
		})
	case pipeline.Rejected:
		msg := "Invalid JSON payload"
		if !out.IsParseError() {
			msg = out.Err.Error()
		}
		c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: msg})
	default:
		resp := errorResponse{Status: "error", Message: "Failed to process data"}
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
	}
}

func (h *handlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Report(c.Request.Context()))
}

func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Wattmon telemetry ingestion server is running",
		"timestamp": time.Now().UTC(),
		"endpoints": gin.H{
			"health":       "/api/health (GET)",
			"receive_data": "/api/data/receive (POST)",
			"mqtt":         h.mqttAddr,
		},
	})
}

func (h *handlers) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Status: "error", Message: "Endpoint not found"})
}

func (h *handlers) recovered(c *gin.Context, rec any) {
	if h.obs != nil {
		h.obs.LogError("http_panic", fmt.Errorf("panic: %v", rec),
			ports.Field{Key: "method", Value: c.Request.Method},
			ports.Field{Key: "url", Value: c.Request.URL.String()})
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Status: "error", Message: "Internal server error"})
}
