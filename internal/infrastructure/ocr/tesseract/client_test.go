package tesseract

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

func TestExtractTextReturnsTrimmedText(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "screen.png" {
			t.Fatalf("filename = %q, want screen.png", header.Filename)
		}
		payload, _ := io.ReadAll(file)
		if string(payload) != "fake-image-bytes" {
			t.Fatalf("payload = %q", payload)
		}
		w.Write([]byte(`{"text": "  Error: connection refused  "}`))
	}))
	defer srv.Close()

	client := New(srv.URL, nil)
	text, err := client.ExtractText(context.Background(), "screen.png", strings.NewReader("fake-image-bytes"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "Error: connection refused" {
		t.Fatalf("text = %q", text)
	}
	mediaType, _, err := mime.ParseMediaType(gotContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q", gotContentType)
	}
}

func TestExtractTextWrapsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tesseract worker crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, nil)
	_, err := client.ExtractText(context.Background(), "screen.jpg", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrOCRFailed) {
		t.Fatalf("err = %v, want ErrOCRFailed", err)
	}
	if !strings.Contains(err.Error(), "tesseract worker crashed") {
		t.Fatalf("err %q missing server detail", err)
	}
}

func TestExtractTextWrapsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := New(srv.URL, nil)
	_, err := client.ExtractText(context.Background(), "screen.jpg", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrOCRFailed) {
		t.Fatalf("err = %v, want ErrOCRFailed", err)
	}
}
