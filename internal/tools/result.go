package tools

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content sent to the agent
	ForUser string `json:"for_user,omitempty"` // content shown to the customer
	IsError bool   `json:"is_error"`
	Handoff bool   `json:"handoff,omitempty"` // conversation moved to a human
	Err     error  `json:"-"`                 // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
