package session

import (
	"context"
	"errors"
	"time"

	"github.com/iudanet/gophstorage/pkg/api"
)

// ErrDisconnected is returned by Run when the inbound stream ends
var ErrDisconnected = errors.New("connection to authority lost")

// Run drives s from incoming frames and a ticker until done reports true,
// the session terminates or ctx is cancelled.
func Run(ctx context.Context, s *Service, incoming <-chan api.Envelope, tick time.Duration, done func(*Service) bool) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-incoming:
			if !ok {
				return ErrDisconnected
			}
			s.Handle(env)
		case <-ticker.C:
			s.Tick()
		}

		st := s.Status()
		if st.State == StateInactive {
			return st.Err
		}
		if done != nil && done(s) {
			return nil
		}
	}
}
