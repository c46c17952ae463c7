package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/propsnap/models"
)

// Targets returns a handler for GET /api/v1/targets.
func Targets(svc Snapshotter) gin.HandlerFunc {
	return func(c *gin.Context) {
		specs := svc.Targets()
		resp := models.TargetsResponse{Targets: make([]models.TargetInfo, len(specs))}
		for i, s := range specs {
			resp.Targets[i] = models.TargetInfo{
				Name:      s.Name,
				BaseURL:   s.BaseURL,
				DirectURL: s.DirectURL,
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
