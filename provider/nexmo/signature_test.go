package nexmo

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-smshook/core"
)

const fixtureSecret = "abcdefABCDEF12345"

func partialPayload() core.Payload {
	return core.Payload{
		"concat":            "true",
		"concat-part":       "1",
		"concat-ref":        "78",
		"concat-total":      "9",
		"keyword":           "LOREM",
		"message-timestamp": "2018-04-24 14:05:19",
		"messageId":         "0B000000D0EBB58D",
		"msisdn":            "447700900419",
		"nonce":             "0a455d75-459e-446c-9072-698728516d7c",
		"sig":               "c4bc6301949691b6093772ba246a35eb",
		"text":              "Lorem Ipsum is simply dummy text of the printing and typesetting in",
		"timestamp":         "1524578719",
		"to":                "447700900996",
		"type":              "unicode",
	}
}

func completePayload() core.Payload {
	return core.Payload{
		"keyword":           "THIS",
		"message-timestamp": "2018-04-24 14:05:19",
		"messageId":         "0B000000D0EBB58D",
		"msisdn":            "447700900419",
		"nonce":             "0a455d75-459e-446c-9072-698728516d7c",
		"sig":               "266c3734d3cf9baf6f293dae148e14f5",
		"text":              "This is complete!",
		"timestamp":         "1524578719",
		"to":                "447700900996",
		"type":              "unicode",
	}
}

func TestSigner_MD5HashMatchesProviderFixtures(t *testing.T) {
	signer, err := NewSigner(fixtureSecret, "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	for name, payload := range map[string]core.Payload{
		"partial":  partialPayload(),
		"complete": completePayload(),
	} {
		got, err := signer.Sign(payload)
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if got != payload["sig"] {
			t.Fatalf("%s: expected %v, got %s", name, payload["sig"], got)
		}
		if !signer.Check(payload) {
			t.Fatalf("%s: expected fixture signature to check", name)
		}
	}
}

func TestSigner_HMACMethods(t *testing.T) {
	expected := map[string]string{
		core.SignatureMethodMD5:    "c444557792098d8054232f5feed094f3",
		core.SignatureMethodSHA1:   "c2890abc8e8b30327c0606c99aa73ad2de6bddc5",
		core.SignatureMethodSHA256: "a3aee19f7e5cbe1faf3d1fefdb93c7fc798b3c059a6b90d06c7156cfa1441f3d",
		core.SignatureMethodSHA512: "2eade5b030997240038dde0f4f1a8b92aa8a195693277f5c62b8dddf5ba0c5d0b35e886a0abf94457ed289c1b0214115cbf4d72ec191e84fa2ab993075bdcfb3",
	}
	for method, want := range expected {
		signer, err := NewSigner(fixtureSecret, method)
		if err != nil {
			t.Fatalf("%s: new signer: %v", method, err)
		}
		got, err := signer.Sign(completePayload())
		if err != nil {
			t.Fatalf("%s: sign: %v", method, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", method, want, got)
		}
	}
}

func TestSigner_ReplacesSeparatorsInValues(t *testing.T) {
	signer, _ := NewSigner(fixtureSecret, core.SignatureMethodMD5Hash)
	payload := completePayload()
	payload["text"] = "a&b=c"
	got, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got != "db9f8410a8ae4f2e35edca56e722d8d1" {
		t.Fatalf("unexpected signature %s", got)
	}
}

func TestSigner_MissingTimestampUsesCurrentEpoch(t *testing.T) {
	signer, _ := NewSigner(fixtureSecret, core.SignatureMethodMD5Hash)
	signer.Now = func() time.Time { return time.Unix(1700000000, 0) }
	payload := completePayload()
	delete(payload, "timestamp")

	got, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got != "a9024bba74d139042a879297d5812d45" {
		t.Fatalf("unexpected signature %s", got)
	}
	if _, ok := payload["timestamp"]; ok {
		t.Fatalf("expected payload not to be modified")
	}
}

func TestSignatureVerifier_RejectsTamperedPayload(t *testing.T) {
	verifier, err := NewSignatureVerifier(fixtureSecret, "md5hash")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	ctx := context.Background()
	if err := verifier.Verify(ctx, partialPayload()); err != nil {
		t.Fatalf("expected fixture to verify: %v", err)
	}

	tampered := partialPayload()
	tampered["text"] = "Lorem Ipsum is simply dummy text"
	if err := verifier.Verify(ctx, tampered); err == nil {
		t.Fatalf("expected tampered payload to fail")
	}

	unsigned := partialPayload()
	delete(unsigned, "sig")
	if err := verifier.Verify(ctx, unsigned); err == nil {
		t.Fatalf("expected unsigned payload to fail")
	}
}

func TestNewSigner_RequiresSecretAndKnownMethod(t *testing.T) {
	if _, err := NewSigner(" ", "md5hash"); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	if _, err := NewSigner(fixtureSecret, "crc32"); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
}
