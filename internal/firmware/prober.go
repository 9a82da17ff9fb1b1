// Package firmware implements the Firmware Probe (spec §4.2) and the
// Version Policy (spec §4.3): the on-device command vocabulary a router's
// FOTA agent understands, and the pure comparison logic that decides
// whether a reported version is newer than what is installed.
package firmware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
	"github.com/iotstackcloud/teltonikaupdater/internal/sshclient"
)

const (
	cmdVersion  = "cat /etc/version"
	cmdFOTAInfo = "ubus call rut_fota get_info"
	cmdDownload = "rut_fota --download_fw"
	cmdLsImage  = "ls -la /tmp/firmware.img"
	cmdVerify   = "sysupgrade -T /tmp/firmware.img"
	cmdApply    = "sysupgrade -c /tmp/firmware.img"

	imagePath = "/tmp/firmware.img"

	// fwNewestSentinel is the value the FOTA agent reports in the "fw"
	// field when there is no update available.
	fwNewestSentinel = "Fw_newest"

	pingTimeout     = 10 * time.Second
	downloadTimeout = 5 * time.Minute
)

// Info is the result of GetInfo.
type Info struct {
	Current         string
	Available       string
	UpdateAvailable bool
}

type fotaInfoEnvelope struct {
	FW string `json:"fw"`
}

// Prober drives the on-device FOTA command vocabulary over a Remote Shell
// Client. It holds no state of its own beyond the credentials it is
// constructed with; every call targets one host.
type Prober struct {
	client   sshclient.Client
	host     string
	port     int
	user     string
	password string
}

// New constructs a Prober for one router.
func New(client sshclient.Client, host string, port int, user, password string) *Prober {
	return &Prober{client: client, host: host, port: port, user: user, password: password}
}

func (p *Prober) exec(ctx context.Context, command string, timeout time.Duration) (string, error) {
	return p.client.Exec(ctx, p.host, p.port, p.user, p.password, command, timeout)
}

// Ping runs a trivial command with a short timeout; it returns true only
// on a clean success, never surfacing a classified error to the caller —
// any failure (auth, network, timeout) simply means "not reachable".
func (p *Prober) Ping(ctx context.Context) bool {
	_, err := p.exec(ctx, cmdVersion, pingTimeout)
	return err == nil
}

// GetCurrent reads the on-device version file. A whitespace-only or empty
// result coerces to nil, matching spec §4.2.
func (p *Prober) GetCurrent(ctx context.Context) (*string, error) {
	out, err := p.exec(ctx, cmdVersion, sshclient.DefaultCommandTimeout)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}

// GetInfo reads the current version, then asks the on-device FOTA agent
// for the target version via the documented "get info" RPC. A missing
// "fw" field, or the Fw_newest sentinel, both mean no update is available.
func (p *Prober) GetInfo(ctx context.Context) (Info, error) {
	current, err := p.GetCurrent(ctx)
	if err != nil {
		return Info{}, err
	}

	raw, err := p.exec(ctx, cmdFOTAInfo, sshclient.DefaultCommandTimeout)
	if err != nil {
		return Info{}, err
	}

	var envelope fotaInfoEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return Info{}, fmt.Errorf("%w: parsing fota info response: %v", rferrors.ErrInternal, err)
	}

	info := Info{}
	if current != nil {
		info.Current = *current
	}
	if envelope.FW != "" && envelope.FW != fwNewestSentinel {
		info.Available = envelope.FW
	}
	info.UpdateAvailable = info.Available != "" && info.Available != info.Current
	return info, nil
}

// DownloadImage invokes the vendor download command, then confirms the
// expected image path now exists.
func (p *Prober) DownloadImage(ctx context.Context) (bool, error) {
	if _, err := p.exec(ctx, cmdDownload, downloadTimeout); err != nil {
		return false, err
	}
	return p.imageExists(ctx)
}

// ImageAlreadyPresent checks whether the firmware image is already on
// the device, letting the rollout engine skip a redundant download.
func (p *Prober) ImageAlreadyPresent(ctx context.Context) bool {
	present, err := p.imageExists(ctx)
	return err == nil && present
}

func (p *Prober) imageExists(ctx context.Context) (bool, error) {
	out, err := p.exec(ctx, cmdLsImage, sshclient.DefaultCommandTimeout)
	if err != nil {
		return false, nil //nolint:nilerr // a failing ls means "not present", not an error worth propagating
	}
	return strings.Contains(out, imagePath), nil
}

// VerifyImage runs the vendor "test image" command; success is a clean
// exit, nothing more.
func (p *Prober) VerifyImage(ctx context.Context) (bool, error) {
	_, err := p.exec(ctx, cmdVerify, sshclient.DefaultCommandTimeout)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ApplyImage runs the vendor upgrade command with the preserve-config
// flag. This command triggers a reboot: the session tears itself down
// mid-command on a healthy flash. A ConnectionClosed error during or
// shortly after issuing this command is success of the submission step,
// not a failure — the single most subtle contract in the system (spec §9).
// Any other error is real.
func (p *Prober) ApplyImage(ctx context.Context, cmdTimeout time.Duration) error {
	_, err := p.exec(ctx, cmdApply, cmdTimeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, rferrors.ErrConnectionClosed) {
		return nil
	}
	return err
}
