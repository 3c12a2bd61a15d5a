// Package noop provides an authenticator that admits every request.
// Intended for local development.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/podexec/pkg/auth"
)

// Authenticator always votes Yes with the anonymous identity.
type Authenticator struct{}

func (Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	return auth.Result{Decision: auth.Yes, Identity: auth.Anonymous()}
}
