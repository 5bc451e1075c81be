package notifier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"shelterops/internal/notifier"
	notifiermetrics "shelterops/internal/notifier/metrics"
	"shelterops/internal/notifier/mocks"
	"shelterops/pkg/platform/circuit"
)

//go:generate mockgen -source=notifier.go -destination=mocks/mocks.go -package=mocks Transport
type NotifierSuite struct {
	suite.Suite
	ctx       context.Context
	transport *mocks.MockTransport
	metrics   *notifiermetrics.Metrics
	now       time.Time
	notifier  *notifier.Notifier
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierSuite))
}

func (s *NotifierSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.transport = mocks.NewMockTransport(ctrl)
	s.metrics = notifiermetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.notifier = notifier.New(s.transport,
		notifier.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		notifier.WithMetrics(s.metrics),
		notifier.WithBreaker(breaker),
		notifier.WithSender("noreply@example.org"),
	)
}

func message() notifier.Message {
	return notifier.Message{To: []string{"officer@example.org"}, Subject: "Export", Body: "attached"}
}

func (s *NotifierSuite) TestSendAppliesDefaultSender() {
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg notifier.Message) error {
			s.Equal("noreply@example.org", msg.Sender)
			return nil
		})

	s.notifier.SendEmail(s.ctx, message())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Sent))
}

func (s *NotifierSuite) TestTransportFailureIsSwallowed() {
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("relay down"))

	s.NotPanics(func() { s.notifier.SendEmail(s.ctx, message()) })
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Failed))
}

func (s *NotifierSuite) TestInvalidMessageIsDropped() {
	s.notifier.SendEmail(s.ctx, notifier.Message{Subject: "nobody"})
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Dropped))
}

func (s *NotifierSuite) TestOpenCircuitDropsUntilCooldown() {
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("relay down")).Times(2)
	s.notifier.SendEmail(s.ctx, message())
	s.notifier.SendEmail(s.ctx, message())

	// open: no transport call
	s.notifier.SendEmail(s.ctx, message())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Dropped))

	s.now = s.now.Add(2 * time.Minute)
	s.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	s.notifier.SendEmail(s.ctx, message())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Sent))
}

func (s *NotifierSuite) TestNilNotifierIsSafe() {
	var n *notifier.Notifier
	s.NotPanics(func() { n.SendEmail(s.ctx, message()) })
}
