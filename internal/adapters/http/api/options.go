package api

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxProfileBytes caps the size of a POST /rank body.
func WithMaxProfileBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.rankHandler.maxBody = n
		}
	}
}

// WithRejectedErrors makes POST /rank answer 422 when a run fails with any
// of errs, instead of 500.
func WithRejectedErrors(errs ...error) Option {
	return func(s *Server) {
		s.rankHandler.rejected = append(s.rankHandler.rejected, errs...)
	}
}
