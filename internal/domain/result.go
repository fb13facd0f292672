package domain

// ResultStatus tells the transport how to answer the delivery
type ResultStatus string

const (
	ResultOK        ResultStatus = "ok"
	ResultIgnored   ResultStatus = "ignored"
	ResultRetryable ResultStatus = "retryable"
	ResultFailed    ResultStatus = "failed"
)

// Result codes that are not SyncError kinds
const (
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeInternal       = "INTERNAL"
)

// Result is returned by every event entry point instead of an error
type Result struct {
	Status    ResultStatus `json:"status"`
	EventType EventType    `json:"event_type"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	// Final is set for failures whose compensation already ran
	Final bool `json:"-"`
}

func OK(eventType EventType) Result {
	return Result{Status: ResultOK, EventType: eventType}
}

func Invalid(eventType EventType, message string) Result {
	return Result{Status: ResultFailed, EventType: eventType, Code: CodeInvalidPayload, Message: message}
}

func Ignored(eventType EventType, reason string) Result {
	return Result{Status: ResultIgnored, EventType: eventType, Message: reason}
}

// FromError classifies err into a retryable or failed result
func FromError(eventType EventType, err error) Result {
	res := Result{Status: ResultFailed, EventType: eventType, Message: err.Error()}
	res.Code = CodeInternal
	if kind, ok := KindOf(err); ok {
		res.Code = string(kind)
	}
	if IsRetryable(err) {
		res.Status = ResultRetryable
	}
	res.Final = IsFinal(err)
	return res
}

// Settled reports whether a redelivery of the same message can be skipped.
// Infrastructure failures are not settled: the sender must be allowed to retry them.
func (r Result) Settled() bool {
	switch r.Status {
	case ResultOK, ResultIgnored:
		return true
	case ResultRetryable:
		return false
	}
	return r.Code == CodeInvalidPayload || r.Final
}
