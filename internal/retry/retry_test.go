package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/imtaco/liveroom/internal/log"
)

type RetryTestSuite struct {
	suite.Suite
	transient error
	fatal     error
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}

func (s *RetryTestSuite) SetupTest() {
	s.transient = errors.New("transient")
	s.fatal = errors.New("fatal")
}

func (s *RetryTestSuite) newRetry(opts ...Option) Retry {
	return New(log.NewNop(), time.Millisecond, 5*time.Millisecond, time.Second, opts...)
}

func (s *RetryTestSuite) TestBoundedRetries() {
	r := s.newRetry(WithMaxRetries(2))
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return s.transient
	})
	s.ErrorIs(err, s.transient)
	s.Equal(3, calls)
}

func (s *RetryTestSuite) TestSucceedsAfterFailure() {
	r := s.newRetry(WithMaxRetries(2))
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return s.transient
		}
		return nil
	})
	s.NoError(err)
	s.Equal(2, calls)
}

func (s *RetryTestSuite) TestNonRetryableStopsImmediately() {
	r := s.newRetry(WithMaxRetries(5), WithRetryIf(func(err error) bool {
		return errors.Is(err, s.transient)
	}))
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return s.fatal
	})
	s.ErrorIs(err, s.fatal)
	s.Equal(1, calls)
}

func (s *RetryTestSuite) TestContextCancelled() {
	r := s.newRetry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Do(ctx, func() error { return s.transient })
	s.Error(err)
}
