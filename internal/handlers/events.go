package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/logger"
	"github.com/wgelabs/lms-backend/internal/middleware"
	"github.com/wgelabs/lms-backend/internal/requestdata"
	"github.com/wgelabs/lms-backend/internal/services"
	"github.com/wgelabs/lms-backend/internal/types"
)

const idempotencyHeader = "X-Idempotency-Key"
const replayHeader = "X-Idempotent-Replay"

type EventHandler struct {
	log         *logger.Logger
	ingest      services.IngestService
	limiter     services.RateLimitService
	idempotency services.IdempotencyService
}

func NewEventHandler(
	log *logger.Logger,
	ingest services.IngestService,
	limiter services.RateLimitService,
	idempotency services.IdempotencyService,
) *EventHandler {
	return &EventHandler{
		log:         log.With("handler", "EventHandler"),
		ingest:      ingest,
		limiter:     limiter,
		idempotency: idempotency,
	}
}

// POST /api/events
// Single-event ingestion. Quiz submissions draw from their own rate budget;
// the X-Idempotency-Key header short-circuits retries onto the stored
// response.
func (h *EventHandler) IngestEvent(c *gin.Context) {
	var in services.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}

	routeClass := services.RouteClassEvents
	if in.Type == types.EventQuizSubmit {
		routeClass = services.RouteClassQuiz
	}
	if !h.admitRate(c, routeClass) {
		return
	}

	rd := requestdata.GetRequestData(c.Request.Context())
	key := c.GetHeader(idempotencyHeader)
	if key != "" {
		admitted, replayed := h.admitKey(c, rd.UserID.String(), key, fingerprint(in))
		if replayed {
			return
		}
		if !admitted {
			return
		}
	}

	result, err := h.ingest.IngestOne(c.Request.Context(), in)
	if err != nil {
		if key != "" {
			// Drop the reservation so a corrected resubmission with the same
			// key is not locked out for the rest of the window.
			if relErr := h.idempotency.Release(c.Request.Context(), rd.UserID.String(), key); relErr != nil {
				h.log.Warn("idempotency release failed", "error", relErr)
			}
		}
		RespondDomainError(c, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, services.CodeInternal, err)
		return
	}
	if key != "" {
		if err := h.idempotency.Store(c.Request.Context(), rd.UserID.String(), key, http.StatusCreated, body); err != nil {
			h.log.Warn("idempotency store failed", "error", err)
		}
	}
	c.Header(replayHeader, "false")
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

type batchRequest struct {
	Events []services.EventInput `json:"events"`
}

type batchResponse struct {
	Outcomes []*services.BatchItemOutcome `json:"outcomes"`
}

// POST /api/events/batch
// Ordered list in, per-item outcome array out. A failing item never rolls
// back the ones accepted before it.
func (h *EventHandler) IngestBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	if len(req.Events) == 0 {
		RespondError(c, http.StatusBadRequest, services.CodeValidation, services.ValidationError("events list is empty"))
		return
	}

	if !h.admitRate(c, services.RouteClassEvents) {
		return
	}
	// Quiz submissions keep their stricter budget inside a batch too: each
	// quiz member is charged as if it had been submitted on its own.
	for _, in := range req.Events {
		if in.Type == types.EventQuizSubmit {
			if !h.admitRate(c, services.RouteClassQuiz) {
				return
			}
		}
	}

	rd := requestdata.GetRequestData(c.Request.Context())
	key := c.GetHeader(idempotencyHeader)
	if key != "" {
		admitted, replayed := h.admitKey(c, rd.UserID.String(), key, fingerprint(req))
		if replayed {
			return
		}
		if !admitted {
			return
		}
	}

	outcomes, err := h.ingest.IngestBatch(c.Request.Context(), req.Events)
	if err != nil {
		if key != "" {
			if relErr := h.idempotency.Release(c.Request.Context(), rd.UserID.String(), key); relErr != nil {
				h.log.Warn("idempotency release failed", "error", relErr)
			}
		}
		RespondDomainError(c, err)
		return
	}

	body, err := json.Marshal(batchResponse{Outcomes: outcomes})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, services.CodeInternal, err)
		return
	}
	if key != "" {
		if err := h.idempotency.Store(c.Request.Context(), rd.UserID.String(), key, http.StatusOK, body); err != nil {
			h.log.Warn("idempotency store failed", "error", err)
		}
	}
	c.Header(replayHeader, "false")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *EventHandler) admitRate(c *gin.Context, routeClass string) bool {
	result, err := h.limiter.Allow(c.Request.Context(), middleware.ClientIdentity(c), routeClass)
	if err != nil {
		h.log.Warn("rate limit check errored, allowing", "error", err)
		return true
	}
	middleware.SetRateHeaders(c, result)
	if !result.Allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"message": "rate limit exceeded",
				"code":    services.CodeRateLimited,
			},
			"retry_after_sec": int(result.RetryAfter.Seconds()) + 1,
		})
		return false
	}
	return true
}

// admitKey returns (admitted, replayed). On replay the cached response has
// already been written, byte-identical to the original, with the replay
// marker header set for monitoring.
func (h *EventHandler) admitKey(c *gin.Context, actorID, key, fp string) (bool, bool) {
	admit, err := h.idempotency.Admit(c.Request.Context(), actorID, key, fp)
	if err != nil {
		h.log.Warn("idempotency admit errored, processing fresh", "error", err)
		return true, false
	}
	switch admit.State {
	case services.AdmitReplay:
		c.Header(replayHeader, "true")
		status := admit.CachedStatus
		if status == 0 {
			status = http.StatusOK
		}
		c.Data(status, "application/json; charset=utf-8", admit.CachedBody)
		return false, true
	case services.AdmitInFlight:
		RespondError(c, http.StatusConflict, services.CodeConflict,
			services.ValidationError("request with this idempotency key is still being processed"))
		return false, false
	default:
		return true, false
	}
}

func fingerprint(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
