package audit

import "go.uber.org/zap"

// Option configures a Sink built by NewSink.
type Option func(*recorderSink)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *recorderSink) {
		s.logger = logger.Named("audit")
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(s *recorderSink) {
		s.enabled = make(map[string]bool)
		for _, action := range actions {
			s.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip. Permission denials are
// always recorded.
func WithDisabledActions(actions ...string) Option {
	return func(s *recorderSink) {
		if s.enabled == nil {
			s.enabled = make(map[string]bool)
			for _, action := range allActions() {
				s.enabled[action] = true
			}
		}
		for _, action := range actions {
			if action == ActionPermissionDenied {
				continue
			}
			delete(s.enabled, action)
		}
	}
}
