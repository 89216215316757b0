package production

// ErrorKind classifies the failure recorded on a scene so callers can tell a
// retryable timeout from a definitive provider rejection.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindImageFailed   ErrorKind = "image_failed"
	ErrorKindVideoRejected ErrorKind = "video_rejected"
	ErrorKindVideoTimeout  ErrorKind = "video_timeout"
	ErrorKindVideoFailed   ErrorKind = "video_failed"
	ErrorKindInterrupted   ErrorKind = "interrupted"
)

// ErrorClassifier allows errors to declare the ErrorKind persisted on a scene.
type ErrorClassifier interface {
	ErrorKind() ErrorKind
}

// Retryable reports whether re-driving the scene with the same inputs can help.
func (k ErrorKind) Retryable() bool {
	return k != ErrorKindVideoRejected
}
