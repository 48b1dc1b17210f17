package adstatus

import (
	"errors"
	"os"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/fleetdm/munki-conditions/pkg/secure"
	pkgerrors "github.com/pkg/errors"
	"howett.net/plist"
)

// failureHistory is the on-disk record of consecutive runs that found the
// Mac on the network but unable to talk to the directory.
type failureHistory struct {
	FailureCount      int         `plist:"failure_count"`
	FailureTimestamps []time.Time `plist:"failure_timestamps"`
}

func readHistory(path string) (failureHistory, error) {
	var h failureHistory
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return h, nil
		}
		return h, pkgerrors.Wrap(err, "read failure history")
	}
	if _, err := plist.Unmarshal(b, &h); err != nil {
		return failureHistory{}, pkgerrors.Wrap(err, "parse failure history")
	}
	return h, nil
}

func writeHistory(path string, h failureHistory) error {
	b, err := plist.MarshalIndent(h, plist.XMLFormat, "\t")
	if err != nil {
		return pkgerrors.Wrap(err, "encode failure history")
	}
	if err := secure.WriteFileAtomic(path, b, constant.DefaultWorldReadableFileMode); err != nil {
		return pkgerrors.Wrap(err, "write failure history")
	}
	return nil
}
