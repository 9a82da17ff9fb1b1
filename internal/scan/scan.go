// Package scan implements the Scan Engine (C6): a chunked concurrent
// firmware-state probe over a selected router set, using the reserved
// synthetic job id "check" on the event bus. Chunking and concurrent
// fan-out within a chunk follows the errgroup pattern used for bounded
// concurrent RPC fan-out in internal/api_server/agentserver/grpc.go;
// chunk partitioning uses samber/lo, already a direct dependency of the
// api packages throughout the teacher repo.
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/iotstackcloud/teltonikaupdater/internal/firmware"
	"github.com/iotstackcloud/teltonikaupdater/internal/metrics"
	"github.com/iotstackcloud/teltonikaupdater/internal/rfcreds"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// JobID is the reserved synthetic job id the scan engine emits events
// under; it is not a real BatchJob row.
const JobID = "check"

const chunkSize = 10

const sshPort = 22

// Engine runs firmware-state scans.
type Engine struct {
	store   *store.Store
	bus     *eventbus.Bus
	sshFn   func() sshclient.Client
	log     logrus.FieldLogger
	metrics *metrics.Collector
}

// New constructs a scan Engine. sshFn is a factory rather than a shared
// client so tests can substitute a fake per call. mc may be nil.
func New(s *store.Store, bus *eventbus.Bus, sshFn func() sshclient.Client, log logrus.FieldLogger, mc *metrics.Collector) *Engine {
	return &Engine{store: s, bus: bus, sshFn: sshFn, log: log, metrics: mc}
}

// Run scans routerIDs (nil/empty means all routers) at bounded
// concurrency, chunk by chunk, mutating each router's firmware fields and
// status and emitting progress over the event bus.
func (e *Engine) Run(ctx context.Context, routerIDs []uuid.UUID) error {
	routers, err := e.resolveCandidates(routerIDs)
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.ScansRun.Inc()
	}

	total := len(routers)
	e.emit(eventbus.UpdateEvent{Type: eventbus.EventJobStarted, Total: intPtr(total)})

	chunks := lo.Chunk(routers, chunkSize)
	var done int

	for _, chunk := range chunks {
		e.emit(eventbus.UpdateEvent{Type: eventbus.EventBatchStarted})

		g, gctx := errgroup.WithContext(ctx)
		for _, r := range chunk {
			r := r
			g.Go(func() error {
				e.scanOne(gctx, r)
				return nil
			})
		}
		_ = g.Wait() // per-router failures are handled inside scanOne, never fatal

		done += len(chunk)
		progress := int(float64(done) / float64(total) * 100)
		e.emit(eventbus.UpdateEvent{Type: eventbus.EventJobProgress, Progress: intPtr(progress)})
	}

	e.emit(eventbus.UpdateEvent{Type: eventbus.EventJobCompleted})
	e.bus.Cleanup(JobID)
	return nil
}

func (e *Engine) resolveCandidates(routerIDs []uuid.UUID) ([]model.Router, error) {
	if len(routerIDs) > 0 {
		return e.store.GetRoutersByIDs(routerIDs)
	}
	return e.store.GetAllRouters()
}

func (e *Engine) scanOne(ctx context.Context, r model.Router) {
	e.emit(eventbus.UpdateEvent{Type: eventbus.EventRouterProgress, RouterID: r.ID.String(), DeviceName: r.DeviceName, IPAddress: r.IPAddress})

	user, password, ok := rfcreds.Resolve(e.store, r)
	if !ok {
		e.finish(r, model.RouterStatusError, nil, nil, "no credentials configured")
		return
	}

	prober := firmware.New(e.sshFn(), r.IPAddress, sshPort, user, password)

	if !prober.Ping(ctx) {
		e.finish(r, model.RouterStatusUnreachable, nil, nil, "")
		return
	}

	info, err := prober.GetInfo(ctx)
	if err != nil {
		e.finish(r, model.RouterStatusError, nil, nil, err.Error())
		return
	}

	var current, available *string
	if info.Current != "" {
		current = &info.Current
	}
	if info.Available != "" {
		available = &info.Available
	}

	updateAvailable := info.UpdateAvailable
	if !updateAvailable && info.Current != "" {
		// The device's own FOTA agent has nothing queued; fall back to the
		// operator-maintained version table (C3) before declaring the
		// router up to date.
		if table, err := e.store.AllFirmwareVersionsAsMap(); err == nil {
			if policyAvailable, latest := firmware.Evaluate(info.Current, table); policyAvailable {
				updateAvailable = true
				available = latest
			}
		}
	}

	status := model.RouterStatusUpToDate
	if updateAvailable {
		status = model.RouterStatusUpdateAvailable
	}
	e.finish(r, status, current, available, "")
}

func (e *Engine) finish(r model.Router, status model.RouterStatus, current, available *string, failMsg string) {
	if err := e.store.UpdateFirmwareInfo(r.ID, current, available, status); err != nil {
		e.log.WithError(err).WithField("router_id", r.ID).Error("scan: failed to persist firmware info")
	}

	switch status {
	case model.RouterStatusUnreachable:
		e.emit(eventbus.UpdateEvent{Type: eventbus.EventRouterFailed, RouterID: r.ID.String(), DeviceName: r.DeviceName, Error: "unreachable"})
	case model.RouterStatusError:
		e.emit(eventbus.UpdateEvent{Type: eventbus.EventRouterFailed, RouterID: r.ID.String(), DeviceName: r.DeviceName, Error: failMsg})
	default:
		e.emit(eventbus.UpdateEvent{Type: eventbus.EventRouterCompleted, RouterID: r.ID.String(), DeviceName: r.DeviceName, Status: string(status)})
	}
}

func (e *Engine) emit(evt eventbus.UpdateEvent) {
	evt.JobID = JobID
	evt.Timestamp = time.Now().UTC()
	e.bus.Emit(evt)
}

func intPtr(v int) *int { return &v }
