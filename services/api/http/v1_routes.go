package http

// registerV1Routes sets up the v1 API.
// Groups: /api/v1/vehicles, /api/v1/executions, /api/v1/proactive, /api/v1/merges
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	vehicles := v1.Group("/vehicles/:id")
	{
		vehicles.GET("/mileage", s.handleV1GetMileage)
		vehicles.POST("/mileage/recompute", s.handleV1Recompute)
		vehicles.GET("/mileage/diagnostics", s.handleV1Diagnostics)
		vehicles.GET("/visits", s.handleV1Visits)
		vehicles.POST("/visits/adjust/preview", s.handleV1AdjustPreview)
		vehicles.POST("/visits/adjust", s.handleV1AdjustSave)
		vehicles.POST("/visits/revert", s.handleV1Revert)
		vehicles.POST("/contacted", s.handleV1MarkContacted)
	}

	v1.POST("/executions/:id/finalize", s.handleV1Finalize)
	v1.GET("/proactive", s.handleV1Proactive)

	merges := v1.Group("/merges")
	{
		merges.GET("/candidates", s.handleV1MergeCandidates)
		merges.POST("", s.handleV1Merge)
	}
}
