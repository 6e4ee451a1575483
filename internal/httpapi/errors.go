package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"schoolattend/internal/apperr"
	"schoolattend/internal/observability"
)

// fail writes err as {error: message} with the status of its kind.
// Unclassified errors are logged and reported as 500.
func (a *API) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	if kind == apperr.Internal {
		a.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		observability.CaptureErr(err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// badRequest reports a binding failure.
func (a *API) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func jsonName(field string) string {
	switch field {
	case "StudentID":
		return "studentId"
	case "Entries":
		return "attendanceData"
	}
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
