package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	s.router.GET("/stream/:idx", s.streamHandler.StreamMJPEG)
	s.router.GET("/frame/:idx", s.streamHandler.LatestFrame)
	s.router.GET("/status", s.statusHandler.GetStatus)
	s.router.GET("/recordings", s.recordingHandler.ListPublic)
	s.router.GET("/recordings/:filename", s.recordingHandler.ServePublic)

	s.router.POST("/auth/pin", s.auth.ExchangePIN)

	protected := s.router.Group("/", s.auth.Middleware())
	{
		protected.GET("/evidence", s.recordingHandler.ListEvidence)
		protected.POST("/decrypt", s.decryptHandler.Decrypt)
		protected.GET("/decrypt-video/:id", s.decryptHandler.ServePreview)
	}
}
