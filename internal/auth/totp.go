package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TwoFactorSetup is handed to the operator when binding an authenticator app.
type TwoFactorSetup struct {
	Secret       string `json:"secret"`
	URI          string `json:"uri"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

// TOTP issues and verifies time-based one-time codes.
type TOTP struct {
	issuer string
	now    func() time.Time
}

// NewTOTP returns a TOTP helper whose secrets show issuer in authenticator apps.
func NewTOTP(issuer string) *TOTP {
	return &TOTP{issuer: issuer, now: time.Now}
}

// Generate creates a new secret for username with its provisioning URI and
// a PNG QR code as a data URI.
func (t *TOTP) Generate(username string) (*TwoFactorSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: username,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	return &TwoFactorSetup{
		Secret:       key.Secret(),
		URI:          key.URL(),
		QRCodeBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Verify checks code against secret, accepting one period of clock skew
// either way.
func (t *TOTP) Verify(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
