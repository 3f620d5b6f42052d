package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMatch(t *testing.T) {
	before := testutil.ToFloat64(MatchTotal.WithLabelValues(OutcomeJoined))
	RecordMatch(OutcomeJoined, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(MatchTotal.WithLabelValues(OutcomeJoined)))
}

func TestRecordConflict(t *testing.T) {
	before := testutil.ToFloat64(ConflictsTotal.WithLabelValues("join"))
	RecordConflict("join")
	RecordConflict("join")
	assert.Equal(t, before+2, testutil.ToFloat64(ConflictsTotal.WithLabelValues("join")))
}

func TestRecordExpired(t *testing.T) {
	before := testutil.ToFloat64(ExpiredPoolsTotal)
	RecordExpired(3)
	assert.Equal(t, before+3, testutil.ToFloat64(ExpiredPoolsTotal))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", status(nil))
	assert.Equal(t, "error", status(errors.New("boom")))
}
