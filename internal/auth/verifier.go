package auth

import (
	"context"
	"time"

	"github.com/PlatformNetwork/term-executor/internal/identity"
)

// Whitelist 认证通过前用于校验身份是否为已知验证人
type Whitelist interface {
	Contains(identity string) bool
}

// AuditSink receives one record per Verify call, accepted or rejected.
// Matches internal/audit.Sink's shape without importing it, so auth has
// no dependency on the storage backend a deployment chooses.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditRecord mirrors internal/audit.Record; kept local to avoid a
// dependency cycle (audit never needs to import auth).
type AuditRecord struct {
	Identity   string
	Nonce      string
	Outcome    string
	Reason     string
	ObservedAt time.Time
}

// RequestVerifier 以固定顺序完成提交请求的单次验证：
// 白名单 -> 格式 -> 签名 -> nonce。
//
// 关键顺序：nonce 只在所有更早的检查都通过之后才被记录，
// 这样一个无效签名无法烧掉合法提交者的 nonce。
type RequestVerifier struct {
	validators Whitelist
	nonces     *NonceStore
	audit      AuditSink
}

// NewRequestVerifier 创建新的请求校验器
func NewRequestVerifier(validators Whitelist, nonces *NonceStore) *RequestVerifier {
	return &RequestVerifier{validators: validators, nonces: nonces, audit: nil}
}

// WithAudit attaches an audit sink; every Verify call, successful or
// not, is recorded through it best-effort (failures are swallowed — the
// sink never gates admission).
func (v *RequestVerifier) WithAudit(sink AuditSink) *RequestVerifier {
	v.audit = sink
	return v
}

// Verify 执行完整的认证流水线，成功时返回 nil。
func (v *RequestVerifier) Verify(env Envelope) error {
	err := v.verify(env)
	v.recordAudit(env, err)
	return err
}

func (v *RequestVerifier) verify(env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	if !v.validators.Contains(env.Identity) {
		return ErrUnauthorizedIdentity
	}

	decoded, err := identity.DecodeSS58(env.Identity)
	if err != nil {
		return ErrMalformedIdentity
	}

	if err := identity.VerifySignature(decoded, env.Identity, env.Nonce, env.Signature); err != nil {
		return ErrInvalidSignature
	}

	if v.nonces.CheckAndInsert(env.Identity, env.Nonce) == Replayed {
		return ErrNonceReused
	}

	return nil
}

func (v *RequestVerifier) recordAudit(env Envelope, verifyErr error) {
	if v.audit == nil {
		return
	}
	rec := AuditRecord{Identity: env.Identity, Nonce: env.Nonce, Outcome: "accepted", ObservedAt: time.Now()}
	if verifyErr != nil {
		rec.Outcome = "rejected"
		if ae, ok := AsAuthError(verifyErr); ok {
			rec.Outcome = ae.Code
		}
		rec.Reason = verifyErr.Error()
	}
	// Best-effort: a dead audit sink must never slow down or fail admission.
	_ = v.audit.Record(context.Background(), rec)
}
