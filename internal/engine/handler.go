package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"rulegen-backend/internal/docindex"
	"rulegen-backend/internal/logger"
	"rulegen-backend/internal/metadata"
	"rulegen-backend/internal/store"
)

// Services bundles the pipeline components served over HTTP.
type Services struct {
	Ingestor   *Ingestor
	Extractor  *Extractor
	Compiler   *Compiler
	Runner     *Runner
	Remediator *Remediator
	Rules      RuleStore
	Uploads    UploadStore
	Flagged    FlaggedStore
}

type Handler struct {
	svc Services
}

func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

// Upload handles POST /api/upload (multipart field "files").
func (h *Handler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, InvalidPayloadError("Expected multipart form with field 'files'"))
	}
	headers := form.File["files"]

	files := make([]UploadFile, 0, len(headers))
	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		files = append(files, UploadFile{Name: fh.Filename, Content: f})
	}

	upload, handle, err := h.svc.Ingestor.Ingest(c.UserContext(), files)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"message":    "Files uploaded and indexed",
		"index":      handle.SessionID,
		"generation": handle.Generation,
		"fileName":   upload.FileName,
		"upload":     upload,
	}})
}

// ListUploads handles GET /api/upload/get
func (h *Handler) ListUploads(c *fiber.Ctx) error {
	uploads, err := h.svc.Uploads.List(c.UserContext())
	if err != nil {
		return fmt.Errorf("list uploads: %w", err)
	}
	return c.JSON(fiber.Map{"data": uploads})
}

type extractRequest struct {
	Index    string `json:"index"`
	FileName string `json:"fileName"`
	Query    string `json:"query"`
}

// ExtractRules handles POST /api/extract-rules
func (h *Handler) ExtractRules(c *fiber.Ctx) error {
	var req extractRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}
	rules, err := h.svc.Extractor.Extract(c.UserContext(), docindex.SessionHandle(req.Index), req.FileName, req.Query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": rules,
		"meta": fiber.Map{"count": len(rules), "source_document": req.FileName},
	})
}

// ListRules handles GET /api/rules[?source_document=]
func (h *Handler) ListRules(c *fiber.Ctx) error {
	rules, err := h.svc.Rules.List(c.UserContext(), c.Query("source_document"))
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	return c.JSON(fiber.Map{"data": rules})
}

type compileRequest struct {
	FileName string `json:"file_name"`
}

// Compile handles POST /api/validate
func (h *Handler) Compile(c *fiber.Ctx) error {
	var req compileRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}
	if strings.TrimSpace(req.FileName) == "" {
		return respondError(c, InvalidPayloadError("file_name is required",
			ErrorDetail{Field: "file_name", Rule: "required", Message: "file_name is required"}))
	}
	validators, err := h.svc.Compiler.Compile(c.UserContext(), req.FileName)
	if err != nil {
		return err
	}
	failed := 0
	for _, v := range validators {
		if v.CompileError != "" {
			failed++
		}
	}
	return c.JSON(fiber.Map{
		"data": validators,
		"meta": fiber.Map{"count": len(validators), "compile_errors": failed},
	})
}

type validateDataRequest struct {
	FileName string          `json:"file_name"`
	RuleID   *int64          `json:"rule_id"`
	Data     json.RawMessage `json:"data"`
}

// ValidateData handles POST /api/data/validate
func (h *Handler) ValidateData(c *fiber.Ctx) error {
	var req validateDataRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}
	if strings.TrimSpace(req.FileName) == "" {
		return respondError(c, InvalidPayloadError("file_name is required",
			ErrorDetail{Field: "file_name", Rule: "required", Message: "file_name is required"}))
	}
	if len(req.Data) == 0 {
		return respondError(c, InvalidPayloadError("data is required",
			ErrorDetail{Field: "data", Rule: "required", Message: "data is required"}))
	}
	table, err := TableFromJSON(req.Data)
	if err != nil {
		return respondError(c, InvalidPayloadError("Invalid data",
			ErrorDetail{Field: "data", Rule: "format", Message: err.Error()}))
	}

	report, err := h.svc.Runner.Run(c.UserContext(), req.FileName, table, req.RuleID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// ListFlagged handles GET /api/flagged[?status=]
func (h *Handler) ListFlagged(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" && status != metadata.FlaggedOpen && status != metadata.FlaggedResolved {
		return respondError(c, InvalidPayloadError("status must be open or resolved"))
	}
	items, err := h.svc.Flagged.List(c.UserContext(), status)
	if err != nil {
		return fmt.Errorf("list flagged: %w", err)
	}
	return c.JSON(fiber.Map{"data": items})
}

// FlaggedSummary handles GET /api/flagged/summary
func (h *Handler) FlaggedSummary(c *fiber.Ctx) error {
	summary, err := h.svc.Flagged.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// SetFlaggedStatus handles POST /api/flagged/:id/status
func (h *Handler) SetFlaggedStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return respondError(c, InvalidPayloadError("id must be a positive integer"))
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}
	if body.Status != metadata.FlaggedOpen && body.Status != metadata.FlaggedResolved {
		return respondError(c, InvalidPayloadError("status must be open or resolved",
			ErrorDetail{Field: "status", Rule: "enum", Message: "status must be open or resolved"}))
	}

	if err := h.svc.Flagged.SetStatus(c.UserContext(), int64(id), body.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError("flagged item", id))
		}
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": body.Status}})
}

type remediationRequest struct {
	FlaggedID int64 `json:"flagged_id"`
}

// GenerateRemediation handles POST /api/remediation/generate
func (h *Handler) GenerateRemediation(c *fiber.Ctx) error {
	var req remediationRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, InvalidPayloadError("Invalid JSON body"))
	}
	if req.FlaggedID < 1 {
		return respondError(c, InvalidPayloadError("flagged_id is required",
			ErrorDetail{Field: "flagged_id", Rule: "required", Message: "flagged_id is required"}))
	}
	text, err := h.svc.Remediator.Remediate(c.UserContext(), req.FlaggedID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"flagged_id": req.FlaggedID, "remediation": text}})
}

// Index handles GET /api
func (h *Handler) Index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name": "rulegen",
		"endpoints": []string{
			"POST /api/upload",
			"GET /api/upload/get",
			"POST /api/extract-rules",
			"GET /api/rules",
			"POST /api/validate",
			"POST /api/data/validate",
			"GET /api/flagged",
			"GET /api/flagged/summary",
			"POST /api/flagged/:id/status",
			"POST /api/remediation/generate",
			"GET /api/llm/status",
			"GET /api/events",
		},
	})
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// ErrorHandler renders every error returned by a handler as the structured
// error body. Unknown errors are logged and reported as INTERNAL_ERROR.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return respondError(c, appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code := CodeInternal
			switch {
			case fiberErr.Code == fiber.StatusNotFound:
				code = CodeNotFound
			case fiberErr.Code < 500:
				code = CodeInvalidPayload
			}
			return respondError(c, NewAppError(code, fiberErr.Code, fiberErr.Message))
		}

		log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return respondError(c, InternalError("Internal server error"))
	}
}
