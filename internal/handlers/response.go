package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wgelabs/lms-backend/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondDomainError maps an outcome code onto its HTTP status. Policy
// violations are conflicts, not bad requests: the payload was well-formed,
// the product rule said no.
func RespondDomainError(c *gin.Context, err error) {
	code := services.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case services.CodeValidation:
		status = http.StatusBadRequest
	case services.CodePolicy:
		status = http.StatusConflict
	case services.CodeNotFound:
		status = http.StatusNotFound
	case services.CodeRateLimited:
		status = http.StatusTooManyRequests
	case services.CodeConflict:
		status = http.StatusConflict
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
