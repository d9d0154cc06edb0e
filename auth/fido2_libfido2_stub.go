//go:build !libfido2

package auth

import (
	"context"
	"fmt"
)

// NewDefaultTokenLocator reports no tokens. Build with -tags libfido2 to
// talk to USB authenticators.
func NewDefaultTokenLocator() TokenLocator {
	return TokenLocatorFunc(func(context.Context) ([]Token, error) {
		return nil, fmt.Errorf("%w: built without libfido2 support", ErrNoAuthenticatorFound)
	})
}
