package utils

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestStreamConfigEqual(t *testing.T) {
	tests := []struct {
		name     string
		configA  nats.StreamConfig
		configB  nats.StreamConfig
		expected bool
	}{
		{
			name: "identical configs",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
				Subjects:  []string{"subject.test"},
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
				Subjects:  []string{"subject.test"},
			},
			expected: true,
		},
		{
			name: "different subjects",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
				Subjects:  []string{"subject.test"}, // Not compared
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
				Subjects:  []string{"subject.test", "subject.test2"}, // Different but not compared
			},
			expected: false,
		},
		{
			name: "different names",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			configB: nats.StreamConfig{
				Name:      "different-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			expected: false,
		},
		{
			name: "different retention",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.InterestPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			expected: false,
		},
		{
			name: "different MaxMsgs",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   2000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			expected: false,
		},
		{
			name: "different MaxAge",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    7200,
				Storage:   nats.FileStorage,
			},
			expected: false,
		},
		{
			name: "different Storage",
			configA: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.FileStorage,
			},
			configB: nats.StreamConfig{
				Name:      "test-stream",
				Retention: nats.LimitsPolicy,
				MaxMsgs:   1000,
				MaxAge:    3600,
				Storage:   nats.MemoryStorage,
			},
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := StreamConfigEqual(tc.configA, tc.configB)
			assert.Equal(t, tc.expected, result)
		})
	}
}
