package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fintherapy-backend/internal/domain"
)

// Response is the envelope of every JSON answer, webhook acknowledgements included
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
	})
}

func Error(c *gin.Context, code int, message string, err interface{}) {
	c.JSON(code, Response{
		Success:   false,
		Message:   message,
		Error:     err,
		RequestID: requestID(c),
	})
}

// RetryLater answers 503 with Retry-After so the sender redelivers
func RetryLater(c *gin.Context, afterSeconds int, message string, err interface{}) {
	c.Header("Retry-After", strconv.Itoa(afterSeconds))
	Error(c, http.StatusServiceUnavailable, message, err)
}

func requestID(c *gin.Context) string {
	return c.GetString(string(domain.KeyRequestID))
}
