// Package inmemdb provides map-backed repositories for tests and local
// development. Semantics mirror the postgres package, including uniqueness
// and not-found behavior.
package inmemdb

import (
	"sync"

	"github.com/Virtual-Educator/SimLearning/core/attempt"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

type (
	DB struct {
		activity *activityTable
		attempt  *attemptTable
	}

	activityTable struct {
		sync.RWMutex
		table map[string]*simulation.Activity
	}

	attemptTable struct {
		sync.RWMutex
		attempts  map[string]*attempt.Attempt
		responses map[string]*attempt.Response // keyed attemptID/responseKey
		events    []*attempt.Event
		eventSeq  int64
	}
)

func Open() (*DB, error) {
	db := &DB{
		activity: &activityTable{table: make(map[string]*simulation.Activity)},
		attempt: &attemptTable{
			attempts:  make(map[string]*attempt.Attempt),
			responses: make(map[string]*attempt.Response),
		},
	}
	return db, nil
}
