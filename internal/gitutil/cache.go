package gitutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CacheDirName derives a stable, filesystem-safe directory name for a
// repository URL. The readable slug keeps cache directories inspectable; the
// hash suffix keeps two URLs with the same tail from colliding.
func CacheDirName(repoURL string) string {
	sum := sha256.Sum256([]byte(repoURL))

	slug := strings.TrimSuffix(repoURL, "/")
	slug = strings.TrimSuffix(slug, ".git")
	if i := strings.LastIndexAny(slug, "/:"); i >= 0 {
		slug = slug[i+1:]
	}
	slug = unsafePathChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "repo"
	}

	return slug + "-" + hex.EncodeToString(sum[:6])
}
