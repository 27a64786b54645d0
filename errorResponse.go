package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/utils"
	"github.com/sirupsen/logrus"
)

var statusByKind = map[utils.ErrorKind]int{
	utils.ErrorKindValidation: http.StatusBadRequest,
	utils.ErrorKindForbidden:  http.StatusForbidden,
	utils.ErrorKindNotFound:   http.StatusNotFound,
	utils.ErrorKindConflict:   http.StatusConflict,
}

// respondError writes expected errors as-is. Anything else is logged and
// answered with a generic "failed to <operation>".
func respondError(c *gin.Context, logger *logrus.Logger, operation string, data any, err error) {
	var e *utils.Error
	if kind, ok := utils.KindOf(err); ok {
		body := gin.H{"error": err.Error()}
		if errors.As(err, &e) && len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
		c.AbortWithStatusJSON(statusByKind[kind], body)
		return
	}
	config.LogError(logger, "server", c.FullPath(), operation, data, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to " + operation})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
