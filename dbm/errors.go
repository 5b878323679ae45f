package dbm

import (
	"errors"

	"github.com/shoaldb/keel/txnerr"
)

var (
	errQueueFull    = errors.New("dbm: session queue at maxSessionProcedure")
	errQueueStopped = errors.New("dbm: session queue stopped")
)

func txnErrInterrupted() error { return txnerr.ErrInterrupted }
