package httpapi

import (
	"net/http"

	"flyerportal/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Response is the success envelope of every /api endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type OffsetPage struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type PageResponse struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination OffsetPage `json:"pagination"`
}

func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func Page(c *gin.Context, data any, page OffsetPage) {
	c.JSON(http.StatusOK, PageResponse{Success: true, Data: data, Pagination: page})
}

func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// Error hands err to middleware.Error for rendering.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// BindJSON binds the body and reports decoding failures as 400.
func BindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		Error(c, errutil.BadRequest("Invalid request body", err))
		return false
	}
	return true
}

func BindQuery(c *gin.Context, out any) bool {
	if err := c.ShouldBindQuery(out); err != nil {
		Error(c, errutil.BadRequest("Invalid query parameters", err))
		return false
	}
	return true
}
