package controllers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// parsePathID reads a numeric id from the named path parameter. gorm inline
// conditions interpret a non-numeric string as a SQL expression, so ids are
// parsed strictly before they reach a query.
func parsePathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
