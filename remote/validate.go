package remote

import (
	"fmt"

	"github.com/blobmirror/blobmirror/stoerr"
)

const (
	minContainerNameLength = 3
	maxContainerNameLength = 63
)

// ValidateContainerName checks a container name against the remote store's
// naming rules: 3-63 characters, lowercase letters, digits and hyphens only,
// beginning and ending with a letter or digit, with no consecutive hyphens.
//
// Validation happens locally so that an invalid name never reaches the wire.
func ValidateContainerName(name string) error {
	if len(name) < minContainerNameLength || len(name) > maxContainerNameLength {
		return stoerr.InvalidArgument(name, fmt.Sprintf("container name must be between %v and %v characters", minContainerNameLength, maxContainerNameLength))
	}

	prevHyphen := false

	for i := 0; i < len(name); i++ {
		c := name[i]

		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false

		case c == '-':
			if i == 0 || i == len(name)-1 {
				return stoerr.InvalidArgument(name, "container name must begin and end with a letter or digit")
			}

			if prevHyphen {
				return stoerr.InvalidArgument(name, "container name must not contain consecutive hyphens")
			}

			prevHyphen = true

		default:
			return stoerr.InvalidArgument(name, "container name may only contain lowercase letters, digits and hyphens")
		}
	}

	return nil
}
