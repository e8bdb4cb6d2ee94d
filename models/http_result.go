package models

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// HttpResult is the response envelope used by every Center and Agent endpoint.
type HttpResult struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Msg    any    `json:"msg"`
	Data   any    `json:"data"`
}

// OK wraps data in a successful envelope.
func OK(msg any, data any) HttpResult {
	return HttpResult{Code: 200, Status: ResultSuccess, Msg: msg, Data: data}
}

// Failed builds a failure envelope with the given code.
func Failed(code int, msg string) HttpResult {
	return HttpResult{Code: code, Status: ResultFailed, Msg: msg}
}
