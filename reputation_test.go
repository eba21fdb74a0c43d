package locstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReputationScores(t *testing.T) {
	rep := NewMachineReputation()

	assert.Zero(t, rep.Score("m1"))

	rep.ReportMissing("m1")
	rep.ReportMissing("m1")
	rep.ReportBad("m1")
	assert.Equal(t, 2*missingPenalty+badPenalty, rep.Score("m1"))
	assert.Zero(t, rep.Score("m2"))
}

func TestReputationConcurrentReports(t *testing.T) {
	rep := NewMachineReputation()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.ReportMissing("m1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 100*missingPenalty, rep.Score("m1"))
}
