package gitutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheDirName(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		wantSlug string
	}{
		{
			name:     "https url with .git suffix",
			url:      "https://github.com/acme/payments.git",
			wantSlug: "payments",
		},
		{
			name:     "https url without suffix",
			url:      "https://example.com/team/service",
			wantSlug: "service",
		},
		{
			name:     "trailing slash",
			url:      "https://example.com/team/service/",
			wantSlug: "service",
		},
		{
			name:     "local path",
			url:      "/var/repos/billing.git",
			wantSlug: "billing",
		},
		{
			name:     "unsafe characters replaced",
			url:      "https://example.com/team/my service!",
			wantSlug: "my-service",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := CacheDirName(tc.url)
			assert.True(t, strings.HasPrefix(got, tc.wantSlug+"-"), "got %q", got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, " ")
		})
	}
}

func TestCacheDirNameIsStableAndCollisionResistant(t *testing.T) {
	a := CacheDirName("https://example.com/team-a/service.git")
	b := CacheDirName("https://example.com/team-b/service.git")

	assert.Equal(t, a, CacheDirName("https://example.com/team-a/service.git"))
	assert.NotEqual(t, a, b, "same repo name under different owners must not collide")
}

func TestValidateRepoURL(t *testing.T) {
	assert.NoError(t, validateRepoURL("https://example.com/acme/service.git"))
	assert.NoError(t, validateRepoURL("/var/repos/service"))
	assert.Error(t, validateRepoURL("ssh://git@example.com/acme/service.git"))
	assert.Error(t, validateRepoURL("file:///etc/passwd"))
}
