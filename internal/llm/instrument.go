package llm

import "context"

// CallRecorder counts model calls by purpose and outcome.
type CallRecorder interface {
	RecordLLMCall(purpose string, err error)
}

type instrumentedClient struct {
	next     Client
	purpose  string
	recorder CallRecorder
}

// Instrument wraps a client so every call is counted under the given
// purpose. A nil recorder returns the client unchanged.
func Instrument(next Client, purpose string, recorder CallRecorder) Client {
	if recorder == nil {
		return next
	}
	return &instrumentedClient{next: next, purpose: purpose, recorder: recorder}
}

func (c *instrumentedClient) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	response, err := c.next.Complete(ctx, system, user, jsonMode)
	c.recorder.RecordLLMCall(c.purpose, err)
	return response, err
}
