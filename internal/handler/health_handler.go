package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 用于存活探测。
func Health(c *gin.Context) {
	c.String(http.StatusOK, "MediMate Backend is Running")
}
