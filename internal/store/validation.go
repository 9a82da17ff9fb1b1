package store

import (
	"fmt"
	"regexp"

	"github.com/iotstackcloud/teltonikaupdater/internal/rferrors"
)

var (
	prefixPattern  = regexp.MustCompile(`^[A-Z0-9]+$`)
	versionPattern = regexp.MustCompile(`^[A-Z0-9]+_R_\d+\.\d+\.\d+\.\d+$`)
)

// ValidateFirmwareVersionWrite enforces spec §6's write-time validation for
// the firmware-version table: prefix `^[A-Z0-9]+$`, version
// `^[A-Z0-9]+_R_\d+\.\d+\.\d+\.\d+$`.
func ValidateFirmwareVersionWrite(prefix, latestVersion string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: device prefix %q must match %s", rferrors.ErrValidation, prefix, prefixPattern.String())
	}
	if !versionPattern.MatchString(latestVersion) {
		return fmt.Errorf("%w: version %q must match %s", rferrors.ErrValidation, latestVersion, versionPattern.String())
	}
	return nil
}
