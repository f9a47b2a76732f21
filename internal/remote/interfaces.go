package remote

import (
	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/sessions"
)

var (
	_ sessions.Backend = (*Client)(nil)
	_ agent.Responder  = (*Client)(nil)
)
