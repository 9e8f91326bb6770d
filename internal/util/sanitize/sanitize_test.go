package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"already clean", "bob-agent_1", "bob-agent_1"},
		{"strips spaces", "bob agent", "bobagent"},
		{"strips path separators", "../../etc/passwd", "etcpasswd"},
		{"strips control chars", "bob\x00\x07", "bob"},
		{"strips unicode", "日本語bob", "bob"},
		{"strips dots and slashes", "a.b/c:d", "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AgentID(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}
