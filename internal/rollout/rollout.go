// Package rollout implements the Rollout Engine (C7): the batch scheduler
// and per-router update state machine, the heart of the system (spec
// §4.7). The fire-and-forget background task shape — a goroutine the
// starting call launches and returns immediately from, tracked in a
// concurrent-safe registry the cancel endpoint mutates — is grounded on
// the signal-driven long-running-worker pattern in
// cmd/flightctl-worker/main.go, adapted from a single process-lifetime
// worker to a per-job worker keyed by job id.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/eventbus"
	"github.com/iotstackcloud/teltonikaupdater/internal/firmware"
	"github.com/iotstackcloud/teltonikaupdater/internal/metrics"
	"github.com/iotstackcloud/teltonikaupdater/internal/pollloop"
	"github.com/iotstackcloud/teltonikaupdater/internal/rfcreds"
	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/sirupsen/logrus"
)

const (
	sshPort = 22

	downloadTimeout    = 5 * time.Minute
	flashCmdTimeout    = 120 * time.Second
	rebootPollInterval = 30 * time.Second
	rebootMaxSteps     = 20
	interBatchTick     = 1 * time.Minute

	batchSizeMin = 1
)

// StartRequest is the operator-supplied rollout request (spec §6).
type StartRequest struct {
	RouterIDs     []uuid.UUID
	BatchSize     int
	IncludeErrors bool
}

// Engine owns the activeBatches registry and the long-running batch
// worker it launches per job.
type Engine struct {
	store   *store.Store
	bus     *eventbus.Bus
	sshFn   func() sshclient.Client
	log     logrus.FieldLogger
	metrics *metrics.Collector

	mu      sync.Mutex
	aborted map[string]chan struct{}
}

// New constructs a rollout Engine. metrics may be nil, in which case
// observations are silently skipped.
func New(s *store.Store, bus *eventbus.Bus, sshFn func() sshclient.Client, log logrus.FieldLogger, mc *metrics.Collector) *Engine {
	return &Engine{store: s, bus: bus, sshFn: sshFn, log: log, metrics: mc, aborted: make(map[string]chan struct{})}
}

// Start validates preconditions, persists a new BatchJob, launches the
// batch worker in the background, and returns the job immediately — the
// worker itself runs asynchronously (spec §9, "fire-and-forget background
// task").
func (e *Engine) Start(req StartRequest) (*model.BatchJob, error) {
	if req.BatchSize < batchSizeMin {
		return nil, fmt.Errorf("%w: batchSize must be >= 1", rferrors.ErrValidation)
	}

	candidates, err := e.resolveCandidates(req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no routers match the rollout selection", rferrors.ErrValidation)
	}

	active, err := e.store.GetActiveJob()
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: job %s is already active", rferrors.ErrConflict, active.ID)
	}

	job := &model.BatchJob{
		Status:       model.JobStatusPending,
		BatchSize:    req.BatchSize,
		TotalRouters: len(candidates),
	}
	if err := e.store.InsertJob(job); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.store.PartialUpdateJob(job.ID, map[string]interface{}{
		"status":     model.JobStatusRunning,
		"started_at": now,
	}); err != nil {
		return nil, err
	}
	job.Status = model.JobStatusRunning
	job.StartedAt = &now

	abortCh := make(chan struct{})
	e.mu.Lock()
	e.aborted[job.ID.String()] = abortCh
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RolloutsStarted.Inc()
	}

	go e.run(job, candidates, req.BatchSize, abortCh)

	return job, nil
}

// Cancel sets the abort flag for jobID. It does not tear down any
// in-flight per-router pipeline — they run to their natural terminal
// state (spec §4.7, "aborting a flash in progress can brick a device").
func (e *Engine) Cancel(jobID uuid.UUID) error {
	e.mu.Lock()
	ch, ok := e.aborted[jobID.String()]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s is not active", rferrors.ErrNotFound, jobID)
	}
	select {
	case <-ch:
		// already aborted
	default:
		close(ch)
	}
	return nil
}

func (e *Engine) isAborted(jobID string) bool {
	e.mu.Lock()
	ch, ok := e.aborted[jobID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (e *Engine) resolveCandidates(req StartRequest) ([]model.Router, error) {
	if len(req.RouterIDs) > 0 {
		return e.store.GetRoutersByIDs(req.RouterIDs)
	}

	routers, err := e.store.GetRoutersByStatus(model.RouterStatusUpdateAvailable)
	if err != nil {
		return nil, err
	}
	if req.IncludeErrors {
		errRouters, err := e.store.GetRoutersByStatus(model.RouterStatusError)
		if err != nil {
			return nil, err
		}
		unreachable, err := e.store.GetRoutersByStatus(model.RouterStatusUnreachable)
		if err != nil {
			return nil, err
		}
		routers = append(routers, errRouters...)
		routers = append(routers, unreachable...)
	}
	return routers, nil
}

// run is the long-running batch worker: one goroutine per job, alive for
// the job's entire lifetime.
func (e *Engine) run(job *model.BatchJob, candidates []model.Router, batchSize int, abortCh chan struct{}) {
	ctx := context.Background()
	jobID := job.ID.String()

	defer func() {
		e.mu.Lock()
		delete(e.aborted, jobID)
		e.mu.Unlock()
		e.bus.Cleanup(jobID)
	}()

	total := len(candidates)
	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventJobStarted, Total: intPtr(total)})

	batches := windowBy(candidates, batchSize)
	var completed, failed int
	aborted := false

	for i, batch := range batches {
		if e.isAborted(jobID) {
			aborted = true
			break
		}

		batchNum := i + 1
		e.emit(jobID, eventbus.UpdateEvent{
			Type:         eventbus.EventBatchStarted,
			BatchNumber:  intPtr(batchNum),
			TotalBatches: intPtr(len(batches)),
		})

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, r := range batch {
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := e.runPipeline(ctx, jobID, r)
				mu.Lock()
				if ok {
					completed++
				} else {
					failed++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		_ = e.store.PartialUpdateJob(job.ID, map[string]interface{}{
			"completed_routers": completed,
			"failed_routers":    failed,
		})

		e.emit(jobID, eventbus.UpdateEvent{
			Type:      eventbus.EventBatchCompleted,
			Completed: intPtr(completed),
			Failed:    intPtr(failed),
		})
		progress := int(float64(completed+failed) / float64(total) * 100)
		e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventJobProgress, Progress: intPtr(progress)})

		if i < len(batches)-1 {
			if e.pauseBetweenBatches(jobID, abortCh) {
				aborted = true
				break
			}
		}
	}

	status := model.JobStatusCompleted
	if aborted {
		status = model.JobStatusCancelled
	}
	now := time.Now().UTC()
	_ = e.store.PartialUpdateJob(job.ID, map[string]interface{}{
		"status":       status,
		"completed_at": now,
	})

	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventJobCompleted, Status: string(status), Completed: intPtr(completed), Failed: intPtr(failed)})
}

// pauseBetweenBatches runs the minute-granular inter-batch pause (spec
// §4.7) on the shared fixed-interval poll loop: emits batch_waiting with a
// descending countdown via OnTick, started with RunAsync so abortCh can
// stop it immediately rather than waiting out the current tick. Returns
// true if the pause was cut short by cancellation.
func (e *Engine) pauseBetweenBatches(jobID string, abortCh chan struct{}) bool {
	minutes, err := e.store.GetBatchWaitMinutes()
	if err != nil || minutes <= 0 {
		return false
	}

	remaining := minutes
	op := func(ctx context.Context) (bool, error) {
		return remaining == 0, nil
	}
	cfg := pollloop.Config{
		Interval: interBatchTick,
		MaxSteps: minutes + 1,
		OnTick: func(step, _ int) {
			nextBatch := time.Now().Add(time.Duration(remaining) * interBatchTick)
			e.emit(jobID, eventbus.UpdateEvent{
				Type:              eventbus.EventBatchWaiting,
				WaitTimeRemaining: intPtr(remaining),
				Message:           fmt.Sprintf("next batch starts %s", humanize.Time(nextBatch)),
			})
			remaining--
		},
	}

	resultCh, stop := pollloop.RunAsync(context.Background(), cfg, op)
	var runErr error
	select {
	case <-abortCh:
		stop()
		runErr = <-resultCh
	case runErr = <-resultCh:
	}
	return errors.Is(runErr, context.Canceled)
}

// runPipeline drives one router through the per-router state machine
// (spec §4.7). It never returns an error to the caller — every failure
// terminates locally with a failed history row and an error router
// status, per the "never propagate a router error upward" contract.
func (e *Engine) runPipeline(ctx context.Context, jobID string, r model.Router) bool {
	firmwareBefore := r.CurrentFirmware

	hist := &model.UpdateHistoryRecord{
		RouterID:       r.ID,
		FirmwareBefore: firmwareBefore,
		Status:         model.HistoryStatusRunning,
	}
	if err := e.store.InsertHistory(hist); err != nil {
		e.log.WithError(err).Error("rollout: failed to insert history row")
		return false
	}
	_ = e.store.UpdateRouterStatus(r.ID, model.RouterStatusUpdating)
	if e.metrics != nil {
		e.metrics.ActiveRouters.Inc()
		defer e.metrics.ActiveRouters.Dec()
	}
	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventRouterStarted, RouterID: r.ID.String(), DeviceName: r.DeviceName, IPAddress: r.IPAddress, FirmwareBefore: firmwareBefore})

	fail := func(msg string) bool {
		now := time.Now().UTC()
		_ = e.store.PartialUpdateHistory(hist.ID, map[string]interface{}{
			"status":        model.HistoryStatusFailed,
			"error_message": msg,
			"completed_at":  now,
		})
		_ = e.store.UpdateRouterStatus(r.ID, model.RouterStatusError)
		e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventRouterFailed, RouterID: r.ID.String(), DeviceName: r.DeviceName, Error: msg})
		if e.metrics != nil {
			e.metrics.ObserveRouterFailure()
		}
		return false
	}

	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventRouterProgress, RouterID: r.ID.String(), DeviceName: r.DeviceName, Status: "downloading"})

	user, password, ok := rfcreds.Resolve(e.store, r)
	if !ok {
		return fail("no credentials configured")
	}

	prober := firmware.New(e.sshFn(), r.IPAddress, sshPort, user, password)

	if !prober.ImageAlreadyPresent(ctx) {
		downloaded, err := prober.DownloadImage(ctx)
		if err != nil || !downloaded {
			return fail("Firmware download failed")
		}
	}

	if ok, err := prober.VerifyImage(ctx); err != nil || !ok {
		return fail("Firmware image verification failed")
	}

	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventRouterProgress, RouterID: r.ID.String(), DeviceName: r.DeviceName, Status: "rebooting"})

	if err := prober.ApplyImage(ctx, flashCmdTimeout); err != nil {
		return fail(err.Error())
	}

	newVersion, ok := e.waitForReboot(ctx, prober, r.AvailableFirmware)
	if !ok {
		return fail("Router did not come back online after update")
	}

	now := time.Now().UTC()
	_ = e.store.PartialUpdateHistory(hist.ID, map[string]interface{}{
		"status":         model.HistoryStatusSuccess,
		"firmware_after": newVersion,
		"completed_at":   now,
	})
	_ = e.store.UpdateRouterFields(r.ID, map[string]interface{}{
		"current_firmware":   newVersion,
		"available_firmware": nil,
		"status":             model.RouterStatusUpToDate,
	})
	e.emit(jobID, eventbus.UpdateEvent{Type: eventbus.EventRouterCompleted, RouterID: r.ID.String(), DeviceName: r.DeviceName, FirmwareBefore: firmwareBefore, FirmwareAfter: &newVersion})
	if e.metrics != nil {
		e.metrics.ObserveRouterSuccess()
	}
	return true
}

// waitForReboot polls getCurrent up to 20 times every 30s (spec §4.7
// step 6). If expected is set, the new reading must match it exactly.
func (e *Engine) waitForReboot(ctx context.Context, prober *firmware.Prober, expected *string) (string, bool) {
	var result string
	err := pollloop.Run(ctx, pollloop.Config{Interval: rebootPollInterval, MaxSteps: rebootMaxSteps}, func(ctx context.Context) (bool, error) {
		current, err := prober.GetCurrent(ctx)
		if err != nil || current == nil {
			return false, nil
		}
		if expected != nil && *current != *expected {
			return false, nil
		}
		result = *current
		return true, nil
	})
	if err != nil {
		return "", false
	}
	return result, true
}

// windowBy splits routers into consecutive windows of at most size.
func windowBy(routers []model.Router, size int) [][]model.Router {
	if size <= 0 {
		size = len(routers)
	}
	var windows [][]model.Router
	for i := 0; i < len(routers); i += size {
		end := i + size
		if end > len(routers) {
			end = len(routers)
		}
		windows = append(windows, routers[i:end])
	}
	return windows
}

func (e *Engine) emit(jobID string, evt eventbus.UpdateEvent) {
	evt.JobID = jobID
	evt.Timestamp = time.Now().UTC()
	e.bus.Emit(evt)
}

func intPtr(v int) *int { return &v }
