package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
)

func TestRESTAdapter_SendsHeadersQueryAndBody(t *testing.T) {
	var gotMethod, gotQuery, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query().Get("api_key")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message-count":"1"}`))
	}))
	defer server.Close()

	adapter := NewJSONAdapter(server.Client())
	res, err := adapter.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL + "/sms/json",
		Query:  map[string]string{"api_key": "key"},
		Body:   []byte(`{"to":"447700900419"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected 2xx, got %d", res.StatusCode)
	}
	if gotMethod != http.MethodPost || gotQuery != "key" || gotContentType != "application/json" {
		t.Fatalf("unexpected request %s query=%q content-type=%q", gotMethod, gotQuery, gotContentType)
	}
	if gotBody != `{"to":"447700900419"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}

	var decoded map[string]string
	if err := res.DecodeJSON(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["message-count"] != "1" {
		t.Fatalf("unexpected decoded body %#v", decoded)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.SMSErrorProviderFailure {
		t.Fatalf("expected %q text code, got %q", core.SMSErrorProviderFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), Request{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.SMSErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %+v", rich)
	}
}
