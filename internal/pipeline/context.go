package pipeline

import (
	"fmt"
	"strings"
)

// ProjectContext is the state bound to one pipeline run.
type ProjectContext struct {
	RepoURL          string // repository identifier as given by the user
	CloneURL         string // expanded URL handed to the driver
	ProjectKey       string
	ServiceProjectID string
	TokenName        string
	Credential       string
}

// ProjectKey derives the project key from a repository identifier: the
// identifier is lowercased and every rune outside a-z is removed.
func ProjectKey(repo string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(repo) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewProjectContext builds the context for repoURL. The service project id
// starts out equal to the project key.
func NewProjectContext(repoURL, cloneURL string) (*ProjectContext, error) {
	key := ProjectKey(repoURL)
	if key == "" {
		return nil, fmt.Errorf("repository %q yields an empty project key", repoURL)
	}
	if cloneURL == "" {
		cloneURL = repoURL
	}
	return &ProjectContext{
		RepoURL:          repoURL,
		CloneURL:         cloneURL,
		ProjectKey:       key,
		ServiceProjectID: key,
	}, nil
}
