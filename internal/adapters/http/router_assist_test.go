package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
)

type serviceFake struct {
	lastReq ports.AssistRequest
	outcome *domain.PipelineOutcome
	err     error
}

func (s *serviceFake) Answer(_ context.Context, req ports.AssistRequest) (*domain.PipelineOutcome, error) {
	s.lastReq = req
	return s.outcome, s.err
}

type ocrFake struct {
	text   string
	err    error
	called bool
}

func (o *ocrFake) ExtractText(_ context.Context, _ string, image io.Reader) (string, error) {
	o.called = true
	_, _ = io.ReadAll(image)
	return o.text, o.err
}

func successfulOutcome() *domain.PipelineOutcome {
	passage := domain.PassageRef{
		ID:         "p1",
		DocumentID: "doc-1",
		Text:       "Restart the agent from the tray icon.",
	}
	return &domain.PipelineOutcome{
		RequestID: "req-1",
		Status:    domain.PipelineSucceeded,
		Result: &domain.GenerationResult{
			AnswerText:      "Restart the agent [1].",
			CitedPassageIDs: []string{"p1"},
			Latency:         120 * time.Millisecond,
		},
		Bundle: &domain.ContextBundle{
			Passages: []domain.FusedPassage{{Passage: passage, DenseRank: 1}},
		},
	}
}

func newTestRouter(svc *serviceFake, ocr *ocrFake) http.Handler {
	var extractor ports.OCRExtractor
	if ocr != nil {
		extractor = ocr
	}
	return NewRouter(svc, extractor, nil, Options{}).Handler()
}

func TestAssistStructuredAnswer(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	handler := newTestRouter(svc, nil)

	body := `{"query": "how do I restart the agent?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("X-Pipeline-Status"); got != "succeeded" {
		t.Fatalf("X-Pipeline-Status = %q", got)
	}
	if svc.lastReq.RawText != "how do I restart the agent?" {
		t.Fatalf("RawText = %q", svc.lastReq.RawText)
	}
	if svc.lastReq.RequestID == "" {
		t.Fatalf("request id not assigned")
	}

	var payload struct {
		Answer    string `json:"answer"`
		Citations []struct {
			PassageID string `json:"passage_id"`
		} `json:"citations"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Answer != "Restart the agent [1]." {
		t.Fatalf("answer = %q", payload.Answer)
	}
	if len(payload.Citations) != 1 || payload.Citations[0].PassageID != "p1" {
		t.Fatalf("citations = %+v", payload.Citations)
	}
}

func TestAssistMarkupAnswer(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	handler := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/assist?format=markup", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(res.Body.String(), "**Sources**") {
		t.Fatalf("markup body missing sources: %s", res.Body.String())
	}
}

func TestAssistUnknownFormatRejected(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	handler := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/assist?format=pdf", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestAssistErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid query", domain.WrapError(domain.ErrInvalidQuery, "normalize", errors.New("empty")), http.StatusBadRequest},
		{"deadline", domain.WrapError(domain.ErrDeadlineExceeded, "pipeline", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"generation down", domain.WrapError(domain.ErrGenerationUnavailable, "generate", errors.New("exhausted")), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &serviceFake{
				outcome: &domain.PipelineOutcome{Status: domain.PipelineFailed},
				err:     tc.err,
			}
			handler := newTestRouter(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/assist", strings.NewReader(`{"query":"q"}`))
			req.Header.Set("Content-Type", "application/json")
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("status = %d, want %d", res.Code, tc.want)
			}
		})
	}
}

func TestAssistEmptyOutcomeStillAnswers(t *testing.T) {
	svc := &serviceFake{outcome: &domain.PipelineOutcome{
		RequestID: "req-2",
		Status:    domain.PipelineSucceeded,
	}}
	handler := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/assist", strings.NewReader(`{"query":"nothing matches this"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var payload struct {
		Answer    string `json:"answer"`
		Citations []any  `json:"citations"`
		NoContent bool   `json:"no_content"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Answer != "" || len(payload.Citations) != 0 {
		t.Fatalf("expected empty answer, got %+v", payload)
	}
	if !payload.NoContent {
		t.Fatalf("empty outcome must carry the no-content marker in the body")
	}
}

func multipartBody(t *testing.T, query, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("query", query); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if filename != "" {
		part, err := writer.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake-image")); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestAssistMultipartWithOCR(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	ocr := &ocrFake{text: "Error: connection refused"}
	handler := newTestRouter(svc, ocr)

	body, contentType := multipartBody(t, "what does this error mean?", "screen.png")
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if !ocr.called {
		t.Fatalf("ocr was not invoked")
	}
	if svc.lastReq.OCRText != "Error: connection refused" {
		t.Fatalf("OCRText = %q", svc.lastReq.OCRText)
	}
}

func TestAssistMultipartRejectsUnknownExtension(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	handler := newTestRouter(svc, &ocrFake{})

	body, contentType := multipartBody(t, "q", "payload.exe")
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestAssistOCRFailureDegrades(t *testing.T) {
	svc := &serviceFake{outcome: successfulOutcome()}
	ocr := &ocrFake{err: errors.New("sidecar down")}
	handler := newTestRouter(svc, ocr)

	body, contentType := multipartBody(t, "what does this error mean?", "screen.jpg")
	req := httptest.NewRequest(http.MethodPost, "/v1/assist", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want degraded success", res.Code)
	}
	if svc.lastReq.OCRText != "" {
		t.Fatalf("OCRText = %q, want empty after OCR failure", svc.lastReq.OCRText)
	}
	if svc.lastReq.RawText != "what does this error mean?" {
		t.Fatalf("RawText = %q", svc.lastReq.RawText)
	}
}

func TestAssistMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&serviceFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/assist", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", res.Code)
	}
}
