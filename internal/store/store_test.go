package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Database.Path = t.TempDir() + "/test.db"
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db, err := InitDB(cfg, log)
	require.NoError(t, err)
	s := NewStore(db, log)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertManyRoutersIsIdempotentByID(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	routers := []model.Router{
		{DeviceName: "r1", IPAddress: "10.0.0.1", Status: model.RouterStatusUnknown},
		{DeviceName: "r2", IPAddress: "10.0.0.2", Status: model.RouterStatusUnknown},
	}
	require.NoError(s.InsertManyRouters(routers))

	first, err := s.GetAllRouters()
	require.NoError(err)
	require.Len(first, 2)

	// Running the same ids again (now populated) must not create
	// duplicates and must upsert in place.
	routers[0].DeviceName = "r1-renamed"
	require.NoError(s.InsertManyRouters(routers))

	second, err := s.GetAllRouters()
	require.NoError(err)
	require.Len(second, 2)

	var renamed bool
	for _, r := range second {
		if r.ID == routers[0].ID {
			renamed = r.DeviceName == "r1-renamed"
		}
	}
	require.True(renamed, "upsert should have applied the rename")
}

func TestGetActiveJobAtMostOne(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	active, err := s.GetActiveJob()
	require.NoError(err)
	require.Nil(active)

	job := &model.BatchJob{Status: model.JobStatusRunning, BatchSize: 10, TotalRouters: 5}
	require.NoError(s.InsertJob(job))

	active, err = s.GetActiveJob()
	require.NoError(err)
	require.NotNil(active)
	require.Equal(job.ID, active.ID)
}

func TestUpdateFirmwareInfoNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateFirmwareInfo(uuid.New(), nil, nil, model.RouterStatusError)
	require.Error(t, err)
}

func TestReconcileOnStartupResolvesStaleState(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	router := &model.Router{DeviceName: "r1", IPAddress: "10.0.0.1", Status: model.RouterStatusUpdating}
	require.NoError(s.InsertOneRouter(router))

	job := &model.BatchJob{Status: model.JobStatusRunning, BatchSize: 10, TotalRouters: 1}
	require.NoError(s.InsertJob(job))

	hist := &model.UpdateHistoryRecord{RouterID: router.ID, Status: model.HistoryStatusRunning}
	require.NoError(s.InsertHistory(hist))

	require.NoError(s.ReconcileOnStartup())

	updatedRouter, err := s.GetRouterByID(router.ID)
	require.NoError(err)
	require.Equal(model.RouterStatusError, updatedRouter.Status)

	updatedJob, err := s.GetJobByID(job.ID)
	require.NoError(err)
	require.Equal(model.JobStatusCancelled, updatedJob.Status)

	active, err := s.GetActiveJob()
	require.NoError(err)
	require.Nil(active)
}

func TestValidateFirmwareVersionWrite(t *testing.T) {
	require.NoError(t, ValidateFirmwareVersionWrite("RUT9", "RUT9_R_00.07.06.20"))
	require.Error(t, ValidateFirmwareVersionWrite("rut9", "RUT9_R_00.07.06.20"))
	require.Error(t, ValidateFirmwareVersionWrite("RUT9", "RUT9-00.07.06.20"))
}
