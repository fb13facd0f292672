package domain

type CtxKey string

const (
	KeyUserID     CtxKey = "UserID"
	KeyExternalID CtxKey = "ExternalID"
	KeyUserRole   CtxKey = "Role"
	KeyRequestID  CtxKey = "RequestID"
)
