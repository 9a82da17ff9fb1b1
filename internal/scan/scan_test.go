package scan

import (
	"context"
	"testing"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/config"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// scriptedClient maps a remote IP to a scripted response/err, keyed by
// command, so each router in a test can behave differently.
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

func newTestEngine(t *testing.T, sc *scriptedClient) (*Engine, *store.Store) {
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
	return eng, s
}

func TestScanMarksUnreachableOnPingFailure(t *testing.T) {
	sc := &scriptedClient{
		byHost: map[string]map[string]string{},
		errs:   map[string]map[string]error{"10.0.0.1": {"cat /etc/version": assertErr}},
	}
	eng, s := newTestEngine(t, sc)

	user, pass := "root", "pw"
	router := &model.Router{DeviceName: "r1", IPAddress: "10.0.0.1", Username: &user, Password: &pass, Status: model.RouterStatusUnknown}
	require.NoError(t, s.InsertOneRouter(router))

	require.NoError(t, eng.Run(context.Background(), nil))

	updated, err := s.GetRouterByID(router.ID)
	require.NoError(t, err)
	require.Equal(t, model.RouterStatusUnreachable, updated.Status)
}

func TestScanMarksUpdateAvailable(t *testing.T) {
	sc := &scriptedClient{
		byHost: map[string]map[string]string{
			"10.0.0.2": {
				"cat /etc/version":      "RUT9_R_00.07.06.10",
				"ubus call rut_fota get_info": `{"fw":"RUT9_R_00.07.07.00"}`,
			},
		},
	}
	eng, s := newTestEngine(t, sc)

	user, pass := "root", "pw"
	router := &model.Router{DeviceName: "r2", IPAddress: "10.0.0.2", Username: &user, Password: &pass, Status: model.RouterStatusUnknown}
	require.NoError(t, s.InsertOneRouter(router))

	require.NoError(t, eng.Run(context.Background(), nil))

	updated, err := s.GetRouterByID(router.ID)
	require.NoError(t, err)
	require.Equal(t, model.RouterStatusUpdateAvailable, updated.Status)
	require.NotNil(t, updated.AvailableFirmware)
	require.Equal(t, "RUT9_R_00.07.07.00", *updated.AvailableFirmware)
}

func TestScanFallsBackToOperatorVersionTable(t *testing.T) {
	sc := &scriptedClient{
		byHost: map[string]map[string]string{
			"10.0.0.5": {
				"cat /etc/version":            "RUT9_R_00.07.05.10",
				"ubus call rut_fota get_info": `{"fw":"Fw_newest"}`,
			},
		},
	}
	eng, s := newTestEngine(t, sc)
	require.NoError(t, s.UpsertFirmwareVersion("RUT9", "RUT9_R_00.07.06.20"))

	user, pass := "root", "pw"
	router := &model.Router{DeviceName: "r5", IPAddress: "10.0.0.5", Username: &user, Password: &pass, Status: model.RouterStatusUnknown}
	require.NoError(t, s.InsertOneRouter(router))

	require.NoError(t, eng.Run(context.Background(), nil))

	updated, err := s.GetRouterByID(router.ID)
	require.NoError(t, err)
	require.Equal(t, model.RouterStatusUpdateAvailable, updated.Status)
	require.NotNil(t, updated.AvailableFirmware)
	require.Equal(t, "RUT9_R_00.07.06.20", *updated.AvailableFirmware)
}

func TestScanMarksErrorWhenNoCredentials(t *testing.T) {
	sc := &scriptedClient{byHost: map[string]map[string]string{}}
	eng, s := newTestEngine(t, sc)

	router := &model.Router{DeviceName: "r3", IPAddress: "10.0.0.3", Status: model.RouterStatusUnknown}
	require.NoError(t, s.InsertOneRouter(router))

	require.NoError(t, eng.Run(context.Background(), nil))

	updated, err := s.GetRouterByID(router.ID)
	require.NoError(t, err)
	require.Equal(t, model.RouterStatusError, updated.Status)
}

func TestScanEmitsJobStartedAndCompleted(t *testing.T) {
	sc := &scriptedClient{byHost: map[string]map[string]string{}}
	eng, s := newTestEngine(t, sc)

	router := &model.Router{DeviceName: "r4", IPAddress: "10.0.0.4", Status: model.RouterStatusUnknown}
	require.NoError(t, s.InsertOneRouter(router))

	var types []eventbus.EventType
	unsub := eng.bus.Subscribe(JobID, func(e eventbus.UpdateEvent) { types = append(types, e.Type) })
	defer unsub()

	require.NoError(t, eng.Run(context.Background(), nil))

	require.Equal(t, eventbus.EventJobStarted, types[0])
	require.Equal(t, eventbus.EventJobCompleted, types[len(types)-1])
}

var assertErr = &scanTestError{}

type scanTestError struct{}

func (e *scanTestError) Error() string { return "connection refused" }
