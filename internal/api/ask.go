package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/nl2sql"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/pipeline"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/schema"
	"github.com/Bugs-BugsBunny/TechFin-Bot/internal/stats"
)

type questionRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	TraceID    string             `json:"trace_id"`
	State      pipeline.State     `json:"state"`
	ErrorKind  pipeline.ErrorKind `json:"error_kind,omitempty"`
	Text       string             `json:"text"`
	SQL        string             `json:"sql,omitempty"`
	Rows       int                `json:"rows"`
	Stats      *stats.Statistics  `json:"stats,omitempty"`
	ChartTitle string             `json:"chart_title,omitempty"`
	ChartPNG   string             `json:"chart_png_base64,omitempty"`
	ChartKey   string             `json:"chart_key,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

// handleAsk runs the pipeline once. An aborted run is still a valid reply
// and answers 200 with its error kind.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	question, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	reply := deps.Asker.Run(r.Context(), question, nil)
	response := askResponse{
		TraceID:    reply.TraceID,
		State:      reply.State,
		ErrorKind:  reply.Kind,
		Text:       reply.Text,
		SQL:        reply.SQL,
		Rows:       reply.Rows,
		Stats:      reply.Stats,
		ChartTitle: reply.ChartTitle,
		ChartKey:   reply.ChartKey,
		DurationMs: reply.Duration.Milliseconds(),
	}
	if len(reply.Image) > 0 {
		response.ChartPNG = base64.StdEncoding.EncodeToString(reply.Image)
	}
	writeJSON(w, http.StatusOK, response)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	question, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	result, err := deps.Translator.Translate(r.Context(), question)
	if err != nil {
		if errors.Is(err, nl2sql.ErrNotInitialized) {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "TRANSLATOR_NOT_INITIALIZED", nl2sql.UserMessage(err), false, nil)
			return
		}
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "translate request failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", nl2sql.UserMessage(err), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	contract := schema.Default()
	if deps.Contract != nil {
		contract = *deps.Contract
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   contract.Table,
		"columns": contract.Columns,
		"rules":   contract.Rules,
		"text":    contract.Text(),
	})
}

func decodeQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	limit := deps.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	var req questionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return "", false
	}
	return question, true
}
