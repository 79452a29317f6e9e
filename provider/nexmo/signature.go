package nexmo

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-smshook/core"
)

const signatureParam = "sig"

var valueReplacer = strings.NewReplacer("&", "_", "=", "_")

// Signer computes request signatures the way the provider does: every
// parameter except "sig", sorted by key, is hashed as "&key=value". The
// md5hash method appends the secret to the input; the other methods use it
// as the HMAC key.
type Signer struct {
	Secret string
	Method string
	Now    func() time.Time
}

func NewSigner(secret string, method string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("nexmo: signature secret is required")
	}
	method = normalizeMethod(method)
	if _, err := newHasher(method, secret); err != nil {
		return nil, err
	}
	return &Signer{
		Secret: secret,
		Method: method,
		Now:    time.Now,
	}, nil
}

// Sign returns the hex digest for params. A missing or empty timestamp is
// filled with the current epoch second before hashing; params itself is not
// modified.
func (s *Signer) Sign(params core.Payload) (string, error) {
	if s == nil {
		return "", fmt.Errorf("nexmo: signer is not configured")
	}
	method := normalizeMethod(s.Method)
	hasher, err := newHasher(method, s.Secret)
	if err != nil {
		return "", err
	}

	values := make(map[string]any, len(params)+1)
	for key, value := range params {
		if key == signatureParam {
			continue
		}
		values[key] = value
	}
	if isEmptyParam(values["timestamp"]) {
		values["timestamp"] = s.now().Unix()
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, _ = hasher.Write([]byte("&" + key + "=" + formatParam(values[key])))
	}
	if method == core.SignatureMethodMD5Hash {
		_, _ = hasher.Write([]byte(s.Secret))
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Check reports whether params carry a valid "sig".
func (s *Signer) Check(params core.Payload) bool {
	provided, _ := params[signatureParam].(string)
	provided = strings.ToLower(strings.TrimSpace(provided))
	if provided == "" {
		return false
	}
	expected, err := s.Sign(params)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// SignatureVerifier adapts Signer to the webhook pipeline.
type SignatureVerifier struct {
	Signer *Signer
}

func NewSignatureVerifier(secret string, method string) (*SignatureVerifier, error) {
	signer, err := NewSigner(secret, method)
	if err != nil {
		return nil, err
	}
	return &SignatureVerifier{Signer: signer}, nil
}

func (v *SignatureVerifier) Verify(_ context.Context, payload core.Payload) error {
	if v == nil || v.Signer == nil {
		return fmt.Errorf("nexmo: signature verifier is not configured")
	}
	if _, ok := payload[signatureParam]; !ok {
		return fmt.Errorf("nexmo: signature parameter is required")
	}
	if !v.Signer.Check(payload) {
		return fmt.Errorf("nexmo: signature verification failed")
	}
	return nil
}

func (s *Signer) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normalizeMethod(method string) string {
	method = strings.TrimSpace(strings.ToLower(method))
	if method == "" {
		return core.SignatureMethodMD5Hash
	}
	return method
}

func newHasher(method string, secret string) (hash.Hash, error) {
	key := []byte(secret)
	switch method {
	case core.SignatureMethodMD5Hash:
		return md5.New(), nil
	case core.SignatureMethodMD5:
		return hmac.New(md5.New, key), nil
	case core.SignatureMethodSHA1:
		return hmac.New(sha1.New, key), nil
	case core.SignatureMethodSHA256:
		return hmac.New(sha256.New, key), nil
	case core.SignatureMethodSHA512:
		return hmac.New(sha512.New, key), nil
	default:
		return nil, fmt.Errorf("nexmo: unsupported signature method %q", method)
	}
}

func isEmptyParam(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case json.Number:
		return typed.String() == "" || typed.String() == "0"
	case int64:
		return typed == 0
	case int:
		return typed == 0
	case float64:
		return typed == 0
	case bool:
		return !typed
	default:
		return false
	}
}

// formatParam renders a decoded JSON value as the provider's reference
// client prints it.
func formatParam(value any) string {
	switch typed := value.(type) {
	case string:
		return valueReplacer.Replace(typed)
	case json.Number:
		return typed.String()
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatFloat(typed, 'f', 1, 64)
		}
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case nil:
		return "None"
	default:
		return fmt.Sprint(typed)
	}
}
