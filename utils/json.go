package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes a 200 JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Fail aborts the request with {"error": msg}.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
