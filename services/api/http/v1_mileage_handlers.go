package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/patio/services/api/db"
)

type adjustRequest struct {
	Visits []db.VisitEdit `json:"visits" binding:"required,min=1,dive"`
}

type revertRequest struct {
	OdometerKM int64 `json:"odometer_km" binding:"required,gt=0"`
}

// handleV1GetMileage returns the stored average daily distance
// GET /api/v1/vehicles/:id/mileage
func (s *Server) handleV1GetMileage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	p, err := s.profile.GetProfile(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

// handleV1Recompute refreshes the average from the stored history
// POST /api/v1/vehicles/:id/mileage/recompute
func (s *Server) handleV1Recompute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	est, err := s.profile.Recompute(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": est,
		"meta": gin.H{"vehicle_id": id},
	})
}

// handleV1Diagnostics traces how the average was reached
// GET /api/v1/vehicles/:id/mileage/diagnostics
func (s *Server) handleV1Diagnostics(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	d, err := s.profile.Diagnose(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": d,
		"meta": gin.H{"vehicle_id": id},
	})
}

// handleV1Visits lists the finalized visit history
// GET /api/v1/vehicles/:id/visits
func (s *Server) handleV1Visits(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	visits, err := s.profile.Visits(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": visits,
		"meta": gin.H{"vehicle_id": id, "count": len(visits)},
	})
}

// handleV1AdjustPreview estimates the average with corrected visits
// POST /api/v1/vehicles/:id/visits/adjust/preview
func (s *Server) handleV1AdjustPreview(c *gin.Context) {
	s.handleAdjust(c, false)
}

// handleV1AdjustSave writes corrected visits and recomputes
// POST /api/v1/vehicles/:id/visits/adjust
func (s *Server) handleV1AdjustSave(c *gin.Context) {
	s.handleAdjust(c, true)
}

func (s *Server) handleAdjust(c *gin.Context, save bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	adjust := s.profile.PreviewAdjust
	if save {
		adjust = s.profile.SaveAdjust
	}
	est, err := adjust(ctx, id, req.Visits)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": est,
		"meta": gin.H{"vehicle_id": id, "saved": save},
	})
}

// handleV1Revert cancels the visits recorded at one odometer reading
// POST /api/v1/vehicles/:id/visits/revert
func (s *Server) handleV1Revert(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req revertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	est, err := s.profile.Revert(ctx, id, req.OdometerKM)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": est,
		"meta": gin.H{"vehicle_id": id, "odometer_km": req.OdometerKM},
	})
}
