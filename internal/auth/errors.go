package auth

import "errors"

// Error 认证失败的机读错误，携带机器码与用户可见消息。
// 两者都不得回显提交的字段值。
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	// ErrUnauthorizedIdentity 身份不在当前验证人集合中
	ErrUnauthorizedIdentity = newError("unauthorized_identity", "identity is not an authorized validator")
	// ErrMalformedIdentity 地址格式 / 校验和非法
	ErrMalformedIdentity = newError("malformed_identity", "identity is not a valid address")
	// ErrNonceReused nonce 在 TTL 内被重放
	ErrNonceReused = newError("nonce_reused", "nonce has already been used")
	// ErrInvalidSignature 签名验证失败
	ErrInvalidSignature = newError("invalid_signature", "signature verification failed")
	// ErrMalformedField 字段长度 / 字符集非法
	ErrMalformedField = newError("malformed_field", "request field is malformed")
)

// AsAuthError 判断 err 是否为（或包裹）本包的 Error。
func AsAuthError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
