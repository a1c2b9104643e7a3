package auth

import (
	"chunkcast/internal/handler"
	"chunkcast/internal/session"
)

// Gate wraps a handler.Handler and requires every publish to carry a
// valid token (see Manager.Issue/Validate) before delegating to the
// wrapped handler's own OnPublish decision.
type Gate struct {
	handler.Handler
	Manager *Manager
}

func (g Gate) OnPublish(sess *session.State, params handler.PublishParams) handler.Decision {
	if err := g.Manager.Validate(params.Token, params.Key); err != nil {
		return handler.Reject
	}
	g.Manager.MarkUsed(params.Token)
	return g.Handler.OnPublish(sess, params)
}

var _ handler.Handler = Gate{}
