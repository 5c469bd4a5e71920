package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectKey(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"axios/axios", "axiosaxios"},
		{"Facebook/React-Native", "facebookreactnative"},
		{"vuejs/vue-2.7", "vuejsvue"},
		{"https://github.com/axios/axios.git", "httpsgithubcomaxiosaxiosgit"},
		{"çaí/Ünïcode", "ancode"},
		{"", ""},
		{"123/456", ""},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectKey(tt.repo))
		})
	}
}

func TestNewProjectContext(t *testing.T) {
	pc, err := NewProjectContext("axios/axios", "")
	require.NoError(t, err)

	assert.Equal(t, "axiosaxios", pc.ProjectKey)
	assert.Equal(t, pc.ProjectKey, pc.ServiceProjectID)
	assert.Equal(t, "axios/axios", pc.CloneURL)
	assert.Empty(t, pc.Credential)

	_, err = NewProjectContext("42", "")
	assert.Error(t, err)
}
