package job

import (
	"context"
	"errors"
	"testing"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/infrastructure/mq"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOutbox(t *testing.T) *repository.OutboxRepository {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewOutboxRepository(db)
}

func pendingMessage(t *testing.T, repo *repository.OutboxRepository, retries int) *model.OutboxMessage {
	t.Helper()
	msg := &model.OutboxMessage{
		MessageKey: "42",
		Topic:      "loyalty.ledger.event",
		EventType:  model.EventPointsEarned,
		Payload:    `{"event_type":"points.earned"}`,
		Status:     model.OutboxStatusPending,
		RetryCount: retries,
	}
	require.NoError(t, repo.Create(context.Background(), nil, msg))
	return msg
}

func TestOutboxSenderMarksPublishedMessagesSent(t *testing.T) {
	repo := setupOutbox(t)
	pendingMessage(t, repo, 0)
	pendingMessage(t, repo, 0)

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	sender := NewOutboxSender(repo, mq.NewPublisher(producer), config.Default())
	assert.Equal(t, 2, sender.flush(context.Background()))
	require.NoError(t, producer.Close())

	sent, err := repo.ListByStatus(context.Background(), model.OutboxStatusSent)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.NotNil(t, sent[0].SentAt)

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	repo := setupOutbox(t)
	fresh := pendingMessage(t, repo, 0)
	exhausted := pendingMessage(t, repo, 4)

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	cfg := config.Default()
	cfg.Business.MaxRetryCount = 5
	sender := NewOutboxSender(repo, mq.NewPublisher(producer), cfg)
	assert.Equal(t, 0, sender.flush(context.Background()))
	require.NoError(t, producer.Close())

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Contains(t, pending[0].LastError, sarama.ErrOutOfBrokers.Error())

	failed, err := repo.ListByStatus(context.Background(), model.OutboxStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, exhausted.ID, failed[0].ID)
}

type fakeSweeper struct {
	calls int
	count int64
	err   error
}

func (s *fakeSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls++
	return s.count, s.err
}

type fakeLocker struct {
	acquired bool
	err      error
	unlocked bool
}

func (l *fakeLocker) TryLock(context.Context) (bool, error) {
	return l.acquired, l.err
}

func (l *fakeLocker) Unlock(context.Context) error {
	l.unlocked = true
	return nil
}

func TestStampCodeSweepJob(t *testing.T) {
	cases := []struct {
		name      string
		locker    *fakeLocker
		wantCalls int
		want      int64
	}{
		{"no lock configured", nil, 1, 3},
		{"lock acquired", &fakeLocker{acquired: true}, 1, 3},
		{"lock held elsewhere", &fakeLocker{acquired: false}, 0, 0},
		{"redis error", &fakeLocker{err: errors.New("connection refused")}, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sweeper := &fakeSweeper{count: 3}
			job := NewStampCodeSweepJob(sweeper, nil, config.Default())
			if tc.locker != nil {
				job.newLock = func() Locker { return tc.locker }
			}

			assert.Equal(t, tc.want, job.sweep(context.Background()))
			assert.Equal(t, tc.wantCalls, sweeper.calls)
			if tc.locker != nil {
				assert.Equal(t, tc.locker.acquired, tc.locker.unlocked)
			}
		})
	}
}

func TestStampCodeSweepJobSurvivesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job := NewStampCodeSweepJob(sweeper, nil, config.Default())

	assert.Equal(t, int64(0), job.sweep(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestStopEndsJobLoops(t *testing.T) {
	repo := setupOutbox(t)
	sender := NewOutboxSender(repo, mq.NewPublisher(mocks.NewSyncProducer(t, nil)), config.Default())
	sweepJob := NewStampCodeSweepJob(&fakeSweeper{}, nil, config.Default())

	done := make(chan struct{}, 2)
	go func() { sender.Start(context.Background()); done <- struct{}{} }()
	go func() { sweepJob.Start(context.Background()); done <- struct{}{} }()

	sender.Stop()
	sweepJob.Stop()
	<-done
	<-done
}
