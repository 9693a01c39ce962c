package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeValidateAccepts(t *testing.T) {
	env := Envelope{Identity: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", Nonce: "abc123", Signature: strings.Repeat("a", 128)}
	assert.NoError(t, env.Validate())
}

func TestEnvelopeValidateRejectsEmptyFields(t *testing.T) {
	base := Envelope{Identity: "id", Nonce: "nonce", Signature: "sig"}

	missingIdentity := base
	missingIdentity.Identity = ""
	assert.ErrorIs(t, missingIdentity.Validate(), ErrMalformedField)

	missingNonce := base
	missingNonce.Nonce = ""
	assert.ErrorIs(t, missingNonce.Validate(), ErrMalformedField)

	missingSig := base
	missingSig.Signature = ""
	assert.ErrorIs(t, missingSig.Validate(), ErrMalformedField)
}

func TestEnvelopeValidateRejectsOversizedFields(t *testing.T) {
	env := Envelope{Identity: strings.Repeat("a", maxIdentityLen+1), Nonce: "n", Signature: "s"}
	assert.ErrorIs(t, env.Validate(), ErrMalformedField)
}

func TestEnvelopeValidateRejectsNonPrintableNonce(t *testing.T) {
	env := Envelope{Identity: "id", Nonce: "abc\x00def", Signature: "s"}
	assert.ErrorIs(t, env.Validate(), ErrMalformedField)
}
