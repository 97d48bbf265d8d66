package api

import "golang.org/x/time/rate"

// Option configures a Server.
type Option func(*Server)

// WithIngestRateLimit throttles POST /scores to perSec requests per second
// with the given burst. A non-positive rate disables throttling.
func WithIngestRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec <= 0 {
			s.ingestLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.ingestLimiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}
