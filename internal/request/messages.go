package request

type ErrorMessage string

const (
	ErrRequestParameterDecodingFailed ErrorMessage = "Request parameter decoding failed"
	ErrAuthorizationNotFound          ErrorMessage = "Authorization not found"
	ErrUnauthorized                   ErrorMessage = "Unauthorized"
	ErrPendingWithdrawal              ErrorMessage = "Pending withdrawal"
	ErrApiCallFailed                  ErrorMessage = "API call failed"
	ErrResponseValueNotFound          ErrorMessage = "Response value not found"
	ErrResponsePending                ErrorMessage = "API response pending"
	ErrFulfillTransactionFailed       ErrorMessage = "Fulfill transaction failed"
	ErrSponsorRequestLimitExceeded    ErrorMessage = "Sponsor request limit exceeded"
	ErrBlockedByEarlierRequest        ErrorMessage = "Blocked by an earlier request of the same sponsor"
	ErrBlockedTooLong                 ErrorMessage = "Request blocked for too many blocks"
)
