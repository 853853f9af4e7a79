package news

import "fmt"

// LLMError wraps a failure to obtain or parse a classification response
// from the configured language model. It is never fatal: the news analyzer
// drops the feed item and continues.
type LLMError struct {
	Msg string
	Err error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Msg, e.Err)
	}
	return "llm: " + e.Msg
}

func (e *LLMError) Unwrap() error { return e.Err }
