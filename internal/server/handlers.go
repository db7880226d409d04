package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/noesis-labs/noesis/internal/anthropic"
	"github.com/noesis-labs/noesis/internal/logging"
	"github.com/noesis-labs/noesis/internal/relay"
	"github.com/noesis-labs/noesis/internal/tabular"
	"github.com/noesis-labs/noesis/pkg/schema"
)

type healthResponse struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	AnthropicConfigured bool   `json:"anthropic_configured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		Message:             "Noesis API is running",
		AnthropicConfigured: s.cfg.Anthropic.Configured(),
	})
}

type processFileRequest struct {
	FileBuffer string `json:"fileBuffer"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	Identity   string `json:"identity"`
}

func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req processFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schema.ProcessingFailure("invalid request body"))
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.FileBuffer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, schema.ProcessingFailure("fileBuffer is not valid base64"))
		return
	}

	sheets, err := tabular.ExtractSheets(req.FileType, data)
	if err != nil {
		var ne *schema.NoesisError
		if errors.As(err, &ne) {
			status := http.StatusOK
			if ne.Code == schema.ErrCodeUnsupportedFile {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, schema.ProcessingFailure(ne.Message))
			return
		}
		s.logger.WarnContext(ctx, "file extraction failed",
			slog.String("file", req.FileName),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, schema.ProcessingFailure(err.Error()))
		return
	}

	// Multi-sheet workbooks are analyzed on their first sheet.
	ds := tabular.FromSheet(sheets[0])
	result, used := s.analyzer.AnalyzeDataset(ctx, req.FileName, ds)
	s.reporter.Report(ctx, req.Identity, used)

	writeJSON(w, http.StatusOK, result)
}

type chatStreamRequest struct {
	Messages      []schema.ChatMessage    `json:"messages"`
	CurrentCanvas string                  `json:"current_canvas"`
	DataSources   []schema.DatasetContext `json:"data_sources"`
	Identity      string                  `json:"identity"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	turnID := uuid.NewString()
	ctx := logging.WithTurnID(r.Context(), turnID)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	emit := func(ev schema.Outbound) error {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if !s.cfg.Anthropic.Configured() {
		_ = emit(schema.ErrorEvent("Anthropic API key is not configured"))
		return
	}

	msgReq := anthropic.MessageRequest{
		System:   s.prompts.SystemPrompt(req.CurrentCanvas, req.DataSources),
		Messages: req.Messages,
		Tools:    []anthropic.Tool{anthropic.EditCanvasTool()},
	}

	events, err := s.streamer.StreamMessages(ctx, msgReq)
	if err != nil {
		s.logger.ErrorContext(ctx, "upstream stream open failed", slog.String("error", err.Error()))
		_ = emit(schema.ErrorEvent(streamErrorMessage(err)))
		return
	}

	rl := relay.New(anthropic.EditCanvasToolName, s.logger)
	used, err := rl.Run(ctx, events, emit)
	if err != nil {
		s.logger.WarnContext(ctx, "turn ended with error", slog.String("error", err.Error()))
	}
	if used != nil {
		s.reporter.Report(ctx, req.Identity, *used)
	}
}

// streamErrorMessage keeps upstream failures terse and credential-free.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, anthropic.ErrUnauthorized):
		return "upstream rejected the configured API key"
	case errors.Is(err, anthropic.ErrRateLimited):
		return "upstream rate limit reached, try again shortly"
	case errors.Is(err, anthropic.ErrUnavailable):
		return "upstream service is unavailable"
	default:
		return "failed to open the model stream"
	}
}
