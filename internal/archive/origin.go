package archive

import (
	"fmt"
	"strings"
)

// Origin tells PutTheFile where the previous copy of an object lives, which
// decides whether an existing remote blob has to be removed first.
type Origin int

const (
	// OriginUnknown is treated like OriginRemoteExisting.
	OriginUnknown Origin = iota
	// OriginLocalOnly means the object was freshly staged and never archived.
	OriginLocalOnly
	// OriginRemoteExisting means an older copy may already be in the container.
	OriginRemoteExisting
)

func (o Origin) String() string {
	switch o {
	case OriginLocalOnly:
		return "local"
	case OriginRemoteExisting:
		return "remote"
	default:
		return "unknown"
	}
}

// ParseOrigin accepts the names produced by Origin.String. Empty means unknown.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return OriginUnknown, nil
	case "local":
		return OriginLocalOnly, nil
	case "remote":
		return OriginRemoteExisting, nil
	default:
		return OriginUnknown, fmt.Errorf("invalid origin %q (want local, remote or unknown)", s)
	}
}

// OriginFromPrevPath derives an Origin from a caller's previous physical path.
// Archived objects have container-relative paths; freshly staged ones have
// absolute local paths.
func OriginFromPrevPath(prev string) Origin {
	switch {
	case prev == "":
		return OriginUnknown
	case strings.HasPrefix(prev, "/"):
		return OriginLocalOnly
	default:
		return OriginRemoteExisting
	}
}
