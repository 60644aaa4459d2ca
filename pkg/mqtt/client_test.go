package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"car/ABC-123/ack", "car/ABC-123/ack", true},
		{"car/+/ack", "car/ABC-123/ack", true},
		{"car/+/ack", "car/XYZ-789/ack", true},
		{"car/+/ack", "car/ABC-123/telemetry", false},
		{"car/+/ack", "truck/ABC-123/ack", false},
		{"car/#", "car/ABC-123/ack", true},
		{"car/#", "car", true},
		{"car/+/ack", "car/ABC-123/ack/extra", false},
		{"car/+", "car/ABC-123/ack", false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, topicsMatch(tc.filter, tc.topic),
			"filter=%s topic=%s", tc.filter, tc.topic)
	}
}

func TestTopicFilterStripsSharedGroup(t *testing.T) {
	require.Equal(t, "car/+/ack", topicFilter("$share/hub/car/+/ack"))
	require.Equal(t, "car/+/ack", topicFilter("car/+/ack"))
}
