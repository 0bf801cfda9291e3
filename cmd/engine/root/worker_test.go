package root

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckWorkload(t *testing.T) {
	tests := []struct {
		name                            string
		scheduler, metrics, redisEvents bool
		wantErr                         error
	}{
		{name: "Nothing enabled", wantErr: errNoWorkload},
		{name: "Scheduler only", scheduler: true},
		{name: "Metrics only", metrics: true},
		{name: "Redis events only", redisEvents: true},
		{name: "Everything", scheduler: true, metrics: true, redisEvents: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkWorkload(tt.scheduler, tt.metrics, tt.redisEvents)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
