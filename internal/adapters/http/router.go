package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
	"github.com/kirillkom/screen-assistant/internal/core/ports"
	"github.com/kirillkom/screen-assistant/internal/core/usecase"
	"github.com/kirillkom/screen-assistant/internal/observability/metrics"
)

const maxImageBytes = 8 << 20

var (
	errInvalidBody      = errors.New("request body is invalid")
	errUnsupportedImage = errors.New("unsupported image format")
)

// Screenshot formats the OCR sidecar accepts.
var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
}

type Options struct {
	ServiceName    string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Router struct {
	service ports.AssistantService
	ocr     ports.OCRExtractor
	metrics *metrics.HTTPServerMetrics
	opts    Options
}

func NewRouter(
	service ports.AssistantService,
	ocr ports.OCRExtractor,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	if opts.ServiceName == "" {
		opts.ServiceName = "screen-assistant"
	}
	return &Router{
		service: service,
		ocr:     ocr,
		metrics: serverMetrics,
		opts:    opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/assist", rt.assist)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) assist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	target := usecase.FormatStructured
	if v := r.URL.Query().Get("format"); v != "" {
		target = usecase.FormatTarget(v)
	}
	if target != usecase.FormatStructured && target != usecase.FormatMarkup {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown format target"})
		return
	}

	req, err := rt.parseAssistRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.RequestID = requestIDFromContext(r.Context())

	outcome, err := rt.service.Answer(r.Context(), req)
	rt.recordOutcome(outcome)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		body := map[string]any{
			"error":      err.Error(),
			"request_id": req.RequestID,
		}
		if outcome != nil {
			body["diagnostics"] = outcome.Diagnostics
		}
		writeJSON(w, status, body)
		return
	}

	result := outcome.Result
	bundle := outcome.Bundle
	if result == nil {
		result = &domain.GenerationResult{}
	}
	if bundle == nil {
		bundle = &domain.ContextBundle{}
	}

	formatted, err := usecase.Format(result, bundle, target)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", formatted.ContentType)
	w.Header().Set("X-Pipeline-Status", string(outcome.Status))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(formatted.Body)
}

// parseAssistRequest accepts either a JSON body or a multipart form with an
// optional screenshot. OCR failure is a degraded path, not a request error.
func (rt *Router) parseAssistRequest(r *http.Request) (ports.AssistRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return rt.parseMultipart(r)
	}

	var body struct {
		Query      string `json:"query"`
		ScreenText string `json:"screen_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ports.AssistRequest{}, errInvalidBody
	}
	return ports.AssistRequest{
		RawText: body.Query,
		OCRText: body.ScreenText,
	}, nil
}

func (rt *Router) parseMultipart(r *http.Request) (ports.AssistRequest, error) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return ports.AssistRequest{}, errInvalidBody
	}

	req := ports.AssistRequest{RawText: r.FormValue("query")}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return ports.AssistRequest{}, errInvalidBody
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		return ports.AssistRequest{}, errUnsupportedImage
	}

	if rt.ocr == nil {
		return req, nil
	}
	text, err := rt.ocr.ExtractText(r.Context(), header.Filename, file)
	if err != nil {
		slog.Warn("ocr_degraded",
			"request_id", requestIDFromContext(r.Context()),
			"filename", header.Filename,
			"error", err,
		)
		return req, nil
	}
	req.OCRText = text
	return req, nil
}

func (rt *Router) recordOutcome(outcome *domain.PipelineOutcome) {
	if rt.metrics == nil || outcome == nil {
		return
	}
	rt.metrics.RecordPipelineOutcome(rt.opts.ServiceName, outcome)
	for _, diag := range outcome.Diagnostics {
		if diag.Stage == "normalizing" && diag.Status == domain.StageDegraded {
			rt.metrics.RecordDenseDisabled(rt.opts.ServiceName)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
