package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/orbenz/movie-booking-system/internal/domain"
	"github.com/orbenz/movie-booking-system/internal/mailer"
	"github.com/orbenz/movie-booking-system/internal/messaging"
	"github.com/orbenz/movie-booking-system/internal/mocks"
	"github.com/orbenz/movie-booking-system/internal/validator"
	"github.com/orbenz/movie-booking-system/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testCorrelationID = "corr-1"

type WorkerTestSuite struct {
	suite.Suite
	publisher *mocks.MockPublisher
	processor *mocks.MockPaymentProcessor
	redis     *mocks.MockRedisClient
	mailer    *mailer.MockMailer
	worker    *worker.Worker
}

func (s *WorkerTestSuite) SetupTest() {
	s.publisher = new(mocks.MockPublisher)
	s.processor = new(mocks.MockPaymentProcessor)
	s.redis = new(mocks.MockRedisClient)
	s.mailer = mailer.NewMockMailer()

	s.worker = worker.New(
		s.publisher,
		s.processor,
		s.mailer,
		s.redis,
		validator.NewValidator(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) expectCacheMiss() {
	s.redis.On("Get", mock.Anything, "mrs:ticket:reply:"+testCorrelationID).
		Return(redis.NewStringResult("", redis.Nil))
	s.redis.On("SetNX", mock.Anything, "mrs:ticket:reply:"+testCorrelationID, mock.Anything, mock.Anything).
		Return(redis.NewBoolResult(true, nil))
}

func orderBody() []byte {
	body, _ := json.Marshal(domain.TicketOrder{
		UserShowtimeID: "ust-1",
		UserDetails:    domain.UserDetails{ID: "u1", Email: "u1@example.com"},
		MovieDetails: domain.MovieDetails{
			HallName:   "Hall 1",
			MovieTitle: "The Matrix",
			Row:        1,
			Column:     2,
		},
	})
	return body
}

func (s *WorkerTestSuite) TestReserveWithoutEnvelopeIsAckedAndDropped() {
	tests := []struct {
		name     string
		delivery messaging.Delivery
	}{
		{
			name:     "missing correlation id",
			delivery: messaging.Delivery{ReplyTo: "somewhere", Body: orderBody()},
		},
		{
			name:     "missing reply target",
			delivery: messaging.Delivery{CorrelationID: testCorrelationID, Body: orderBody()},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			action := s.worker.HandleReserve(context.Background(), tt.delivery)

			s.Equal(messaging.Ack, action)
			s.processor.AssertNotCalled(s.T(), "Charge", mock.Anything, mock.Anything)
			s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything)
		})
	}
}

func (s *WorkerTestSuite) TestReserveChargesAndReplies() {
	s.expectCacheMiss()
	s.processor.On("Charge", mock.Anything, mock.Anything).Return("txn-9", nil)
	s.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(msg messaging.Outbound) bool {
		var receipt domain.TicketReceipt
		if err := json.Unmarshal(msg.Body, &receipt); err != nil {
			return false
		}

		return msg.RoutingKey == "reply.here" &&
			msg.CorrelationID == testCorrelationID &&
			receipt.UserShowtimeID == "ust-1" &&
			receipt.TransactionID == "txn-9"
	})).Return(nil)

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          orderBody(),
	})

	s.Equal(messaging.Ack, action)

	emails := s.mailer.SentEmails()
	s.Require().Len(emails, 1)
	s.Equal("u1@example.com", emails[0].Recipient)
}

func (s *WorkerTestSuite) TestReserveRedeliveryRepublishesCachedReceipt() {
	cached, _ := json.Marshal(domain.TicketReceipt{UserShowtimeID: "ust-1", TransactionID: "txn-9"})

	s.redis.On("Get", mock.Anything, "mrs:ticket:reply:"+testCorrelationID).
		Return(redis.NewStringResult(string(cached), nil))
	s.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(msg messaging.Outbound) bool {
		return string(msg.Body) == string(cached) && msg.CorrelationID == testCorrelationID
	})).Return(nil)

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          orderBody(),
	})

	s.Equal(messaging.Ack, action)
	s.processor.AssertNotCalled(s.T(), "Charge", mock.Anything, mock.Anything)
}

func (s *WorkerTestSuite) TestReserveUndecodableBodyIsDropped() {
	s.redis.On("Get", mock.Anything, mock.Anything).
		Return(redis.NewStringResult("", redis.Nil))

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          []byte("not json"),
	})

	s.Equal(messaging.Drop, action)
	s.processor.AssertNotCalled(s.T(), "Charge", mock.Anything, mock.Anything)
}

func (s *WorkerTestSuite) TestReserveInvalidOrderIsDropped() {
	s.redis.On("Get", mock.Anything, mock.Anything).
		Return(redis.NewStringResult("", redis.Nil))

	body, _ := json.Marshal(domain.TicketOrder{UserShowtimeID: "ust-1"})

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          body,
	})

	s.Equal(messaging.Drop, action)
	s.processor.AssertNotCalled(s.T(), "Charge", mock.Anything, mock.Anything)
}

func (s *WorkerTestSuite) TestReserveChargeFailureRequeues() {
	s.redis.On("Get", mock.Anything, mock.Anything).
		Return(redis.NewStringResult("", redis.Nil))
	s.processor.On("Charge", mock.Anything, mock.Anything).
		Return("", errors.New("payment provider down"))

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          orderBody(),
	})

	s.Equal(messaging.Requeue, action)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything)
}

func (s *WorkerTestSuite) TestReserveUnconfirmedReplyRequeues() {
	s.expectCacheMiss()
	s.processor.On("Charge", mock.Anything, mock.Anything).Return("txn-9", nil)
	s.publisher.On("Publish", mock.Anything, mock.Anything).
		Return(messaging.ErrPublishUnconfirmed)

	action := s.worker.HandleReserve(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "reply.here",
		Body:          orderBody(),
	})

	// Ack happens only after a confirmed reply; otherwise the broker must
	// redeliver so the cached receipt can close the loop.
	s.Equal(messaging.Requeue, action)
}

func (s *WorkerTestSuite) TestCancelRefundsAndEchoesRequest() {
	body, _ := json.Marshal(domain.TicketCancellation{
		ShowtimeID: "st1",
		UserIDs:    domain.UserIDList{"u1", "u2"},
	})

	s.expectCacheMiss()
	s.processor.On("Refund", mock.Anything, mock.MatchedBy(func(c domain.TicketCancellation) bool {
		return c.ShowtimeID == "st1" && len(c.UserIDs) == 2
	})).Return(nil)
	s.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(msg messaging.Outbound) bool {
		var confirmation domain.TicketCancellation
		if err := json.Unmarshal(msg.Body, &confirmation); err != nil {
			return false
		}

		return msg.CorrelationID == testCorrelationID &&
			msg.RoutingKey == "cancel.reply.here" &&
			confirmation.ShowtimeID == "st1"
	})).Return(nil)

	action := s.worker.HandleCancel(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "cancel.reply.here",
		Body:          body,
	})

	s.Equal(messaging.Ack, action)
}

func (s *WorkerTestSuite) TestCancelSingleUserIDString() {
	body := []byte(`{"showtimeId":"st1","userIds":"u1"}`)

	s.expectCacheMiss()
	s.processor.On("Refund", mock.Anything, mock.MatchedBy(func(c domain.TicketCancellation) bool {
		return len(c.UserIDs) == 1 && c.UserIDs[0] == "u1"
	})).Return(nil)
	s.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	action := s.worker.HandleCancel(context.Background(), messaging.Delivery{
		CorrelationID: testCorrelationID,
		ReplyTo:       "cancel.reply.here",
		Body:          body,
	})

	s.Equal(messaging.Ack, action)
}
