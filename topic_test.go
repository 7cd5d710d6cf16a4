package waitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicValid(t *testing.T) {
	tests := []struct {
		name  string
		topic Topic
		want  bool
	}{
		{"simple", "sensors", true},
		{"multi level", "sensor.readings.v1", true},
		{"empty", "", false},
		{"leading dot", ".sensors", false},
		{"trailing dot", "sensors.", false},
		{"double dot", "sensor..readings", false},
		{"space", "sensor readings", false},
		{"wildcard star", "sensor.*", false},
		{"wildcard gt", "sensor.>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.valid())
		})
	}
}

func TestServiceTopics(t *testing.T) {
	assert.Equal(t, Topic("rq.add_two_ints"), requestTopic("add_two_ints"))
	assert.Equal(t, Topic("rr.add_two_ints"), replyTopic("add_two_ints"))
	assert.True(t, requestTopic("add_two_ints").valid())
	assert.True(t, replyTopic("add_two_ints").valid())
}
