package install

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dcgm-keeper/internal/models"
)

func TestStrictHealthErrorOnlyFailsUnavailable(t *testing.T) {
	cases := []struct {
		name           string
		classification models.HealthClass
		strict         bool
		wantErr        bool
	}{
		{"unavailable strict", models.HealthUnavailable, true, true},
		{"unavailable lenient", models.HealthUnavailable, false, false},
		{"partial strict", models.HealthPartiallyAvailable, true, false},
		{"available strict", models.HealthAvailable, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			health := &models.HealthCheckResult{Classification: tc.classification}
			err := strictHealthError(health, tc.strict)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
