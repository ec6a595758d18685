package errorx

type Code int

var Unknown = Error{Code: 100000, Message: "Request failed"}

const (
	// Common codes
	BadRequest       Code = 100001
	BadResponse      Code = 100002
	PermissionDenied Code = 100003
	NotFound         Code = 100004
	Unauthenticated  Code = 100005
	AlreadyExists    Code = 100006
	Internal         Code = 100007
	Unavailable      Code = 100008
	NotImplemented   Code = 100009
	TooManyRequests  Code = 100010

	// Token codes
	InvalidSignature Code = 200001
	TokenExpired     Code = 200002
	MalformedToken   Code = 200003
	IssuerMismatch   Code = 200004

	// Session codes
	SessionNotFound         Code = 300001
	SessionExpiredOrRevoked Code = 300002

	// Identity codes
	LinkNotFound      Code = 400001
	DuplicateIdentity Code = 400002
	AccountNotFound   Code = 400003
	ProviderFailure   Code = 400004
)
