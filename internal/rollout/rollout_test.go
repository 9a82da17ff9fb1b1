package rollout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	byHost map[string]map[string]string
	errs   map[string]map[string]error
}

func (c *scriptedClient) Exec(_ context.Context, host string, _ int, _, _, command string, _ time.Duration) (string, error) {
	if errs, ok := c.errs[host]; ok {
		if err, ok := errs[command]; ok {
			return "", err
		}
	}
	return c.byHost[host][command], nil
}

func newTestEngine(t *testing.T, sc *scriptedClient) (*Engine, *store.Store, *eventbus.Bus) {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Database.Path = t.TempDir() + "/test.db"
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db, err := store.InitDB(cfg, log)
	require.NoError(t, err)
	s := store.NewStore(db, log)
	t.Cleanup(func() { _ = s.Close() })

	bus := eventbus.New(log)
	eng := New(s, bus, func() sshclient.Client { return sc }, log, nil)
	return eng, s, bus
}

func waitForTerminal(t *testing.T, s *store.Store, jobID uuid.UUID) *model.BatchJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJobByID(jobID)
		require.NoError(t, err)
		if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusCancelled {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return nil
}

func TestHappyPathSingleRouter(t *testing.T) {
	require := require.New(t)
	sc := &scriptedClient{
		byHost: map[string]map[string]string{
			"10.0.0.1": {
				"ls -la /tmp/firmware.img":        "-rw-r--r-- 1 root root 1 /tmp/firmware.img",
				"sysupgrade -T /tmp/firmware.img": "ok",
				"cat /etc/version":                "RUT9_R_00.07.06.20",
			},
		},
	}

	eng, s, bus := newTestEngine(t, sc)

	before := "RUT9_R_00.07.06.11"
	after := "RUT9_R_00.07.06.20"
	router := &model.Router{
		DeviceName:        "r1",
		IPAddress:         "10.0.0.1",
		CurrentFirmware:   &before,
		AvailableFirmware: &after,
		Status:            model.RouterStatusUpdateAvailable,
	}
	require.NoError(s.InsertOneRouter(router))
	require.NoError(s.SetGlobalCredentials("root", "pw"))

	var types []eventbus.EventType
	unsub := bus.SubscribeAll(func(e eventbus.UpdateEvent) { types = append(types, e.Type) })
	defer unsub()

	job, err := eng.Start(StartRequest{RouterIDs: []uuid.UUID{router.ID}, BatchSize: 1})
	require.NoError(err)
	require.NotNil(job)

	finalJob := waitForTerminal(t, s, job.ID)
	require.Equal(model.JobStatusCompleted, finalJob.Status)
	require.Equal(1, finalJob.CompletedRouters)
	require.Equal(0, finalJob.FailedRouters)

	updated, err := s.GetRouterByID(router.ID)
	require.NoError(err)
	require.Equal(model.RouterStatusUpToDate, updated.Status)
	require.Equal(after, *updated.CurrentFirmware)
	require.Nil(updated.AvailableFirmware)

	require.Contains(types, eventbus.EventJobStarted)
	require.Contains(types, eventbus.EventRouterCompleted)
	require.Contains(types, eventbus.EventJobCompleted)
}

func TestConflictWhenJobAlreadyActive(t *testing.T) {
	require := require.New(t)
	sc := &scriptedClient{byHost: map[string]map[string]string{}}
	eng, s, _ := newTestEngine(t, sc)

	router := &model.Router{DeviceName: "r1", IPAddress: "10.0.0.1", Status: model.RouterStatusUpdateAvailable}
	require.NoError(s.InsertOneRouter(router))
	require.NoError(s.SetGlobalCredentials("root", "pw"))

	active := &model.BatchJob{Status: model.JobStatusRunning, BatchSize: 1, TotalRouters: 1}
	require.NoError(s.InsertJob(active))

	_, err := eng.Start(StartRequest{RouterIDs: []uuid.UUID{router.ID}, BatchSize: 1})
	require.Error(err)
}

func TestCancelMarksJobCancelled(t *testing.T) {
	require := require.New(t)
	sc := &scriptedClient{byHost: map[string]map[string]string{}}
	eng, s, _ := newTestEngine(t, sc)

	r1 := &model.Router{DeviceName: "r1", IPAddress: "10.0.0.1", Status: model.RouterStatusUpdateAvailable}
	r2 := &model.Router{DeviceName: "r2", IPAddress: "10.0.0.2", Status: model.RouterStatusUpdateAvailable}
	require.NoError(s.InsertOneRouter(r1))
	require.NoError(s.InsertOneRouter(r2))
	require.NoError(s.SetGlobalCredentials("root", "pw"))
	require.NoError(s.SetBatchWaitMinutes(1))

	job, err := eng.Start(StartRequest{RouterIDs: []uuid.UUID{r1.ID, r2.ID}, BatchSize: 1})
	require.NoError(err)

	// give the first router's pipeline a moment to finish before cancelling
	// during the inter-batch pause.
	time.Sleep(100 * time.Millisecond)
	require.NoError(eng.Cancel(job.ID))

	finalJob := waitForTerminal(t, s, job.ID)
	require.Equal(model.JobStatusCancelled, finalJob.Status)
}

func TestCancelUnknownJobFails(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedClient{byHost: map[string]map[string]string{}})
	err := eng.Cancel(uuid.New())
	require.Error(t, err)
}
