package agent

import "context"

// Responder produces a reply for a chat request.
// Implemented by the gRPC client, the Gemini adapter and the placeholder.
type Responder interface {
	Respond(ctx context.Context, req Request) (*Reply, error)
}

// Ensure adapters implement Responder.
var (
	_ Responder = (*GrpcClient)(nil)
	_ Responder = (*GeminiResponder)(nil)
	_ Responder = Placeholder{}
	_ Responder = (*Service)(nil)
)
