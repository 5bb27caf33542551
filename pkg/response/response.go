package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope of every REST reply.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Meta accompanies collection replies.
type Meta struct {
	Count int `json:"count"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeValidation   = "VALIDATION_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

var statusCodes = map[string]int{
	CodeBadRequest:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeConflict:     http.StatusConflict,
	CodeValidation:   http.StatusUnprocessableEntity,
	CodeInternal:     http.StatusInternalServerError,
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// List sends a collection with its element count.
func List(c *gin.Context, items any, count int) {
	c.JSON(http.StatusOK, Response{Success: true, Data: items, Meta: &Meta{Count: count}})
}

// Fail sends an error envelope whose HTTP status follows from code.
// Unknown codes are reported as 500.
func Fail(c *gin.Context, code, message string) {
	status, ok := statusCodes[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, message string)    { Fail(c, CodeBadRequest, message) }
func Unauthorized(c *gin.Context, message string)  { Fail(c, CodeUnauthorized, message) }
func Forbidden(c *gin.Context, message string)     { Fail(c, CodeForbidden, message) }
func NotFound(c *gin.Context, message string)      { Fail(c, CodeNotFound, message) }
func Conflict(c *gin.Context, message string)      { Fail(c, CodeConflict, message) }
func InternalError(c *gin.Context, message string) { Fail(c, CodeInternal, message) }

// Unprocessable reports input that parsed but failed validation.
func Unprocessable(c *gin.Context, message string) { Fail(c, CodeValidation, message) }
