package periodicscan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type countingScanner struct{ calls int32 }

func (c *countingScanner) Run(context.Context, []uuid.UUID) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Database.Path = t.TempDir() + "/test.db"
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	db, err := store.InitDB(cfg, log)
	require.NoError(t, err)
	s := store.NewStore(db, log)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoopDisabledWithoutSetting(t *testing.T) {
	s := newTestStore(t)
	scanner := &countingScanner{}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	loop := New(s, scanner, log)
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	orig := pollIntervalForTest(10 * time.Millisecond)
	defer orig()

	loop.Run(ctx)
	require.EqualValues(t, 0, atomic.LoadInt32(&scanner.calls))
}

func TestLoopDisabledOnInvalidCron(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSetting(model.SettingScanCron, "not a cron expression"))
	scanner := &countingScanner{}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	loop := New(s, scanner, log)
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	orig := pollIntervalForTest(10 * time.Millisecond)
	defer orig()

	loop.Run(ctx)
	require.EqualValues(t, 0, atomic.LoadInt32(&scanner.calls))
}
