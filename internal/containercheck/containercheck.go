// Package containercheck validates container-image and container-compose
// source references during install.validate. It never pulls layers or runs
// anything; running containers is out of scope (spec section 1).
package containercheck

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// CheckImage resolves ref against its registry with a HEAD-only request,
// confirming the reference exists without downloading any layer.
func CheckImage(ref string) error {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return fmt.Errorf("containercheck: parse reference %q: %w", ref, err)
	}
	if _, err := remote.Head(parsed, remote.WithAuthFromKeychain(authn.DefaultKeychain)); err != nil {
		return fmt.Errorf("containercheck: resolve %q: %w", ref, err)
	}
	return nil
}

// CheckCompose rejects an empty compose file reference and accepts any
// other string; it neither parses the path nor opens or interprets the
// compose document, since container orchestration stays a Non-goal.
func CheckCompose(path string) error {
	if path == "" {
		return fmt.Errorf("containercheck: empty compose reference")
	}
	return nil
}
