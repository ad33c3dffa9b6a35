package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/patio/internal/mileage"
)

const (
	defaultThresholdKM     = 10000
	defaultThresholdMonths = 6
	maxThresholdKM         = 1000000
	maxProactivePage       = 100000
)

type finalizeRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

type mergeRequest struct {
	OldVehicleID int64 `json:"old_vehicle_id" binding:"required,gt=0"`
	NewVehicleID int64 `json:"new_vehicle_id" binding:"required,gt=0"`
}

// handleV1Finalize closes a service execution
// POST /api/v1/executions/:id/finalize
func (s *Server) handleV1Finalize(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := s.profile.Finalize(ctx, id, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

// proactiveRule reads the due rule from the query string.
func proactiveRule(c *gin.Context) (mileage.DueRule, gin.H, bool) {
	mode, err := mileage.ParseMode(c.DefaultQuery("mode", string(mileage.ModeDistance)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return mileage.DueRule{}, nil, false
	}

	rule := mileage.DueRule{Mode: mode}
	switch mode {
	case mileage.ModeDistance:
		rule.ThresholdKM = defaultThresholdKM
		if v := c.Query("threshold_km"); v != "" {
			km, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsNaN(km) || km < 0 || km > maxThresholdKM {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold_km"})
				return mileage.DueRule{}, nil, false
			}
			rule.ThresholdKM = km
		}
		return rule, gin.H{"mode": mode, "threshold_km": rule.ThresholdKM}, true
	default:
		value := defaultThresholdMonths
		if v := c.Query("threshold"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
				return mileage.DueRule{}, nil, false
			}
			value = n
		}
		unit := c.DefaultQuery("unit", "months")
		days, err := mileage.ThresholdDaysFor(value, unit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return mileage.DueRule{}, nil, false
		}
		rule.ThresholdDays = days
		return rule, gin.H{"mode": mode, "threshold_days": days}, true
	}
}

// handleV1Proactive lists vehicles due for a proactive contact
// GET /api/v1/proactive?mode=distance&threshold_km=10000&page=1
// GET /api/v1/proactive?mode=elapsed&threshold=6&unit=months
func (s *Server) handleV1Proactive(c *gin.Context) {
	rule, meta, ok := proactiveRule(c)
	if !ok {
		return
	}

	page := 1
	if p := c.Query("page"); p != "" {
		val, err := strconv.Atoi(p)
		if err == nil && val > maxProactivePage {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		if err == nil && val > 0 {
			page = val
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.profile.Proactive(ctx, rule, page)
	if err != nil {
		writeError(c, err)
		return
	}

	meta["page"] = result.Page
	meta["page_size"] = result.PageSize
	meta["total_count"] = result.Total
	totalPages := (result.Total + result.PageSize - 1) / result.PageSize
	meta["total_pages"] = totalPages
	meta["has_next"] = result.Page < totalPages
	meta["has_prev"] = result.Page > 1

	c.JSON(http.StatusOK, gin.H{
		"data": result.Items,
		"meta": meta,
	})
}

// handleV1MarkContacted removes a vehicle from the proactive list
// POST /api/v1/vehicles/:id/contacted
func (s *Server) handleV1MarkContacted(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	day, err := s.profile.MarkContacted(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"vehicle_id":             id,
		"proactive_contact_date": day.Format("2006-01-02"),
	}})
}

// handleV1MergeCandidates lists legacy/Mercosul plate pairs
// GET /api/v1/merges/candidates
func (s *Server) handleV1MergeCandidates(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	pairs, err := s.profile.MergeCandidates(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": pairs,
		"meta": gin.H{"count": len(pairs)},
	})
}

// handleV1Merge folds one vehicle into another
// POST /api/v1/merges
func (s *Server) handleV1Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	est, err := s.profile.Merge(ctx, req.OldVehicleID, req.NewVehicleID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": est,
		"meta": gin.H{"old_vehicle_id": req.OldVehicleID, "new_vehicle_id": req.NewVehicleID},
	})
}
