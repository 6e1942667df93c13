package envelope

// Kind classifies a Failure. The set is closed.
type Kind string

const (
	// KindValidation means caller-supplied input failed a synchronous precondition.
	// No request was sent.
	KindValidation Kind = "ValidationError"
	// KindNetwork means the request never reached or never returned from the remote.
	KindNetwork Kind = "NetworkError"
	// KindTimeout means no response arrived within the attempt's deadline.
	KindTimeout Kind = "TimeoutError"
	// KindServer means the remote responded with a non-2xx status.
	KindServer Kind = "ServerError"
	// KindUpload means the storage endpoint rejected a direct transfer.
	KindUpload Kind = "UploadError"
	// KindUploadAborted means the caller cancelled an upload.
	KindUploadAborted Kind = "UploadAbortedError"
	// KindRetryLimit means all attempts were exhausted without a result.
	KindRetryLimit Kind = "RetryLimitError"
	// KindUnknown is used for anything uncategorized.
	KindUnknown Kind = "UnknownError"
)

var kinds = map[Kind]bool{
	KindValidation:    true,
	KindNetwork:       true,
	KindTimeout:       true,
	KindServer:        true,
	KindUpload:        true,
	KindUploadAborted: true,
	KindRetryLimit:    true,
	KindUnknown:       true,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return kinds[k]
}

func (k Kind) String() string {
	return string(k)
}

// Retryable reports whether a failure of this kind may be retried at all.
// Server errors additionally depend on the status, see ErrorDetail.Retryable.
func (k Kind) Retryable() bool {
	switch k {
	case KindServer, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}
