// Package captcha verifies reCAPTCHA tokens submitted with registrations.
package captcha

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier checks tokens against the siteverify endpoint. With an empty
// secret every token passes.
type Verifier struct {
	http   *resty.Client
	secret string
	log    *zap.Logger
}

func NewVerifier(verifyURL, secret string, log *zap.Logger) *Verifier {
	return &Verifier{
		http:   resty.New().SetBaseURL(verifyURL).SetTimeout(5 * time.Second),
		secret: secret,
		log:    log,
	}
}

// Enabled reports whether verification is configured.
func (v *Verifier) Enabled() bool { return v.secret != "" }

// Verify returns true when the token is accepted. Transport failures count
// as rejection.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) bool {
	if !v.Enabled() {
		return true
	}
	if token == "" {
		v.log.Warn("captcha token missing")
		return false
	}
	params := map[string]string{"secret": v.secret, "response": token}
	if remoteIP != "" {
		params["remoteip"] = remoteIP
	}
	var out verifyResponse
	resp, err := v.http.R().SetContext(ctx).SetFormData(params).SetResult(&out).Post("")
	if err != nil {
		v.log.Error("captcha verify failed", zap.Error(err))
		return false
	}
	if resp.IsError() {
		v.log.Error("captcha verify failed", zap.Int("status_code", resp.StatusCode()))
		return false
	}
	if !out.Success {
		v.log.Info("captcha rejected", zap.Strings("error_codes", out.ErrorCodes))
	}
	return out.Success
}
