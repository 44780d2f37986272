package llm

import "fmt"

// TransportError reports a failure below the chat-completion protocol:
// resolution, connection, timeout, a non-2xx status, or an unreadable
// response. The message always names the target host.
type TransportError struct {
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport: host %s: %v", e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GenerationError is the umbrella failure returned by Generate: a
// transport failure, an unparseable response body, or a response with
// no choices.
type GenerationError struct {
	Msg string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *GenerationError) Unwrap() error { return e.Err }
