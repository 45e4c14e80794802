package errors

import "net/http"

// HTTPStatus maps an error code to an HTTP status code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case InvalidParams, ValidationFailed, LanguageNotSupported:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound, RecordNotFound, ProblemNotFound, TestCaseNotFound, SubmissionNotFound:
		return http.StatusNotFound
	case JudgeQueueFull:
		return http.StatusTooManyRequests
	case Timeout, RemoteJudgeTimeout:
		return http.StatusGatewayTimeout
	case ServiceUnavailable, RemoteJudgeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
