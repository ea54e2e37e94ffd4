package billing

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

const (
	LemonSqueezySignatureHeader = "X-Signature"
	LemonSqueezyEventHeader     = "X-Event-Name"

	PayPalTransmissionIDHeader   = "PAYPAL-TRANSMISSION-ID"
	PayPalTransmissionTimeHeader = "PAYPAL-TRANSMISSION-TIME"
	PayPalTransmissionSigHeader  = "PAYPAL-TRANSMISSION-SIG"
	PayPalCertURLHeader          = "PAYPAL-CERT-URL"
	PayPalAuthAlgoHeader         = "PAYPAL-AUTH-ALGO"

	defaultPayPalCertHostSuffix = ".paypal.com"
	maxCertSize                 = 64 << 10
)

// VerifyLemonSqueezySignature checks the hex HMAC-SHA256 of the raw body.
func VerifyLemonSqueezySignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC(payload, decodedSig, []byte(secret), sha256.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// PayPalHeaders are the transmission headers PayPal signs a delivery with.
type PayPalHeaders struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// CertFetcher loads the signing certificate a PayPal delivery points to.
type CertFetcher func(ctx context.Context, certURL string) (*x509.Certificate, error)

// PayPalVerifier verifies PayPal webhook signatures offline: an RSA-SHA256
// signature over "transmissionId|transmissionTime|webhookId|crc32(body)".
type PayPalVerifier struct {
	webhookID  string
	hostSuffix string
	fetch      CertFetcher

	mu    sync.Mutex
	certs map[string]*x509.Certificate
}

func NewPayPalVerifier(webhookID, certHostSuffix string, fetch CertFetcher) *PayPalVerifier {
	if certHostSuffix == "" {
		certHostSuffix = defaultPayPalCertHostSuffix
	}
	if fetch == nil {
		fetch = HTTPCertFetcher(&http.Client{Timeout: 10 * time.Second})
	}
	return &PayPalVerifier{
		webhookID:  strings.TrimSpace(webhookID),
		hostSuffix: strings.ToLower(certHostSuffix),
		fetch:      fetch,
		certs:      make(map[string]*x509.Certificate),
	}
}

// NewPayPalVerifierFromEnv reads PAYPAL_WEBHOOK_ID and PAYPAL_CERT_HOST_SUFFIX.
func NewPayPalVerifierFromEnv() *PayPalVerifier {
	return NewPayPalVerifier(
		env.GetEnv("PAYPAL_WEBHOOK_ID", ""),
		env.GetEnv("PAYPAL_CERT_HOST_SUFFIX", defaultPayPalCertHostSuffix),
		nil,
	)
}

func (v *PayPalVerifier) Verify(ctx context.Context, h PayPalHeaders, payload []byte) error {
	if v == nil || v.webhookID == "" {
		return fmt.Errorf("%w: paypal webhook id not configured", ErrSignatureInvalid)
	}
	if h.TransmissionID == "" || h.TransmissionTime == "" || h.TransmissionSig == "" || h.CertURL == "" {
		return fmt.Errorf("%w: missing paypal transmission headers", ErrSignatureInvalid)
	}
	if h.AuthAlgo != "" && !strings.EqualFold(h.AuthAlgo, "SHA256withRSA") {
		return fmt.Errorf("%w: unsupported auth algo %q", ErrSignatureInvalid, h.AuthAlgo)
	}
	if err := v.checkCertURL(h.CertURL); err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(h.TransmissionSig))
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrSignatureInvalid)
	}

	cert, err := v.cert(ctx, h.CertURL)
	if err != nil {
		return err
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: signing certificate is not valid now", ErrSignatureInvalid)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: signing certificate has no RSA key", ErrSignatureInvalid)
	}

	msg := fmt.Sprintf("%s|%s|%s|%d", h.TransmissionID, h.TransmissionTime, v.webhookID, crc32.ChecksumIEEE(payload))
	digest := sha256.Sum256([]byte(msg))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

func (v *PayPalVerifier) checkCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return fmt.Errorf("%w: cert url must be https", ErrSignatureInvalid)
	}
	host := strings.ToLower(u.Hostname())
	if host != strings.TrimPrefix(v.hostSuffix, ".") && !strings.HasSuffix(host, v.hostSuffix) {
		return fmt.Errorf("%w: untrusted cert host %q", ErrSignatureInvalid, host)
	}
	return nil
}

func (v *PayPalVerifier) cert(ctx context.Context, certURL string) (*x509.Certificate, error) {
	v.mu.Lock()
	cached, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	cert, err := v.fetch(ctx, certURL)
	if err != nil {
		return nil, fmt.Errorf("fetch paypal cert: %w", err)
	}

	v.mu.Lock()
	v.certs[certURL] = cert
	v.mu.Unlock()
	return cert, nil
}

// HTTPCertFetcher downloads a PEM certificate over HTTP.
func HTTPCertFetcher(client *http.Client) CertFetcher {
	return func(ctx context.Context, certURL string) (*x509.Certificate, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("cert download returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertSize))
		if err != nil {
			return nil, err
		}
		return ParseCertificatePEM(body)
	}
}

func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate found")
	}
	return x509.ParseCertificate(block.Bytes)
}
