package taskstats

import "errors"

var (
	// ErrNoFamilyID means the controller did not resolve "TASKSTATS".
	ErrNoFamilyID = errors.New("taskstats: no family id found for TASKSTATS")

	// ErrNoStats means the response carried no TASKSTATS_TYPE_STATS record.
	ErrNoStats = errors.New("taskstats: no stats found in response")

	// ErrEmptyCPUMask rejects a registration that would name no CPU.
	ErrEmptyCPUMask = errors.New("taskstats: empty cpu mask")

	// ErrUnsupported is returned by Open on platforms without netlink.
	ErrUnsupported = errors.New("taskstats: requires linux")
)
