package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegen-backend/internal/logger"
)

func testApp(t *testing.T, env *testEnv) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger.Nop())})
	RegisterRoutes(app, NewHandler(env.svc))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func uploadFiles(t *testing.T, app *fiber.App, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out), string(b))
	return out
}

type errorBody struct {
	Error AppError `json:"error"`
}

func TestHandler_Pipeline(t *testing.T) {
	env := newTestEnv(t)
	env.llm.response = twoRulesJSON
	app := testApp(t, env)

	// 1. Upload
	resp := uploadFiles(t, app, map[string]string{"policy.txt": policyText})
	require.Equal(t, 200, resp.StatusCode)
	uploaded := decode[struct {
		Data struct {
			Index      string `json:"index"`
			Generation uint64 `json:"generation"`
			FileName   string `json:"fileName"`
		} `json:"data"`
	}](t, resp)
	require.NotEmpty(t, uploaded.Data.Index)
	assert.Equal(t, "policy.txt", uploaded.Data.FileName)

	// 2. Extract
	resp = doRequest(t, app, "POST", "/api/extract-rules", map[string]any{
		"index": uploaded.Data.Index, "fileName": "policy.pdf", "query": "eligibility",
	})
	require.Equal(t, 200, resp.StatusCode)
	extracted := decode[struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}](t, resp)
	assert.Equal(t, 2, extracted.Meta.Count)
	assert.Equal(t, "age_range", extracted.Data[0]["rule_name"])

	// 3. Compile
	resp = doRequest(t, app, "POST", "/api/validate", map[string]any{"file_name": "policy.pdf"})
	require.Equal(t, 200, resp.StatusCode)
	compiled := decode[struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count         int `json:"count"`
			CompileErrors int `json:"compile_errors"`
		} `json:"meta"`
	}](t, resp)
	assert.Equal(t, 2, compiled.Meta.Count)
	assert.Equal(t, 0, compiled.Meta.CompileErrors)
	assert.Equal(t, "positive_income", compiled.Data[1]["function_name"])

	// 4. Validate data
	resp = doRequest(t, app, "POST", "/api/data/validate", map[string]any{
		"file_name": "policy.pdf",
		"data":      map[string]any{"age": []any{30, 16}, "income": []any{100, 200}},
	})
	require.Equal(t, 200, resp.StatusCode)
	report := decode[struct {
		Data RunReport `json:"data"`
	}](t, resp)
	assert.Equal(t, 2, report.Data.Rows)
	require.Len(t, report.Data.Violations, 1)
	assert.Equal(t, 1, report.Data.Violations[0].RowIndex)
	assert.Equal(t, 1, report.Data.Flagged)

	// 5. Flagged items
	resp = doRequest(t, app, "GET", "/api/flagged?status=open", nil)
	require.Equal(t, 200, resp.StatusCode)
	flagged := decode[struct {
		Data []struct {
			ID       int64  `json:"id"`
			RuleName string `json:"rule_name"`
			Value    string `json:"field_value"`
		} `json:"data"`
	}](t, resp)
	require.Len(t, flagged.Data, 1)
	assert.Equal(t, "16", flagged.Data[0].Value)
	id := flagged.Data[0].ID

	// 6. Remediation
	env.llm.response = "Verify the applicant's age."
	resp = doRequest(t, app, "POST", "/api/remediation/generate", map[string]any{"flagged_id": id})
	require.Equal(t, 200, resp.StatusCode)
	remediation := decode[struct {
		Data struct {
			Remediation string `json:"remediation"`
		} `json:"data"`
	}](t, resp)
	assert.Equal(t, "Verify the applicant's age.", remediation.Data.Remediation)

	// 7. Resolve
	resp = doRequest(t, app, "POST", fmt.Sprintf("/api/flagged/%d/status", id), map[string]any{"status": "resolved"})
	require.Equal(t, 200, resp.StatusCode)

	resp = doRequest(t, app, "GET", "/api/flagged/summary", nil)
	require.Equal(t, 200, resp.StatusCode)
	summary := decode[struct {
		Data []struct {
			RuleName string `json:"rule_name"`
			Total    int64  `json:"total"`
			Open     int64  `json:"open"`
		} `json:"data"`
	}](t, resp)
	require.Len(t, summary.Data, 1)
	assert.Equal(t, "age_range", summary.Data[0].RuleName)
	assert.Equal(t, int64(1), summary.Data[0].Total)
	assert.Equal(t, int64(0), summary.Data[0].Open)

	// 8. Listings
	resp = doRequest(t, app, "GET", "/api/rules?source_document=policy.pdf", nil)
	require.Equal(t, 200, resp.StatusCode)
	rules := decode[struct {
		Data []map[string]any `json:"data"`
	}](t, resp)
	assert.Len(t, rules.Data, 2)

	resp = doRequest(t, app, "GET", "/api/upload/get", nil)
	require.Equal(t, 200, resp.StatusCode)
	uploads := decode[struct {
		Data []map[string]any `json:"data"`
	}](t, resp)
	require.Len(t, uploads.Data, 1)
	assert.Equal(t, uploaded.Data.Index, uploads.Data[0]["index_reference"])
}

func TestHandler_ExtractErrors(t *testing.T) {
	env := newTestEnv(t)
	app := testApp(t, env)

	resp := doRequest(t, app, "POST", "/api/extract-rules", map[string]any{"fileName": "doc.pdf", "query": "limits"})
	assert.Equal(t, 409, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, CodeNotIndexed, body.Error.Code)

	handle := env.index(t, "doc.txt")
	env.llm.response = "I cannot answer that."
	resp = doRequest(t, app, "POST", "/api/extract-rules", map[string]any{
		"index": handle.SessionID, "fileName": "doc.pdf", "query": "limits",
	})
	assert.Equal(t, 422, resp.StatusCode)
	body = decode[errorBody](t, resp)
	assert.Equal(t, CodeMalformedResponse, body.Error.Code)
	assert.Equal(t, "I cannot answer that.", body.Error.RawResponse)
	assert.NotEmpty(t, body.Error.Suggestion)
}

func TestHandler_PayloadErrors(t *testing.T) {
	env := newTestEnv(t)
	app := testApp(t, env)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"compile without file", "POST", "/api/validate", map[string]any{}, 400, CodeInvalidPayload},
		{"validate without data", "POST", "/api/data/validate", map[string]any{"file_name": "a.pdf"}, 400, CodeInvalidPayload},
		{"validate bad data", "POST", "/api/data/validate", map[string]any{"file_name": "a.pdf", "data": "rows"}, 400, CodeInvalidPayload},
		{"validate ragged columns", "POST", "/api/data/validate", map[string]any{"file_name": "a.pdf", "data": map[string]any{"a": []int{1}, "b": []int{1, 2}}}, 400, CodeInvalidPayload},
		{"validate without rules", "POST", "/api/data/validate", map[string]any{"file_name": "a.pdf", "data": []any{map[string]any{"a": 1}}}, 404, CodeNotFound},
		{"flagged bad status filter", "GET", "/api/flagged?status=closed", nil, 400, CodeInvalidPayload},
		{"status bad id", "POST", "/api/flagged/abc/status", map[string]any{"status": "resolved"}, 400, CodeInvalidPayload},
		{"status bad value", "POST", "/api/flagged/1/status", map[string]any{"status": "done"}, 400, CodeInvalidPayload},
		{"status unknown item", "POST", "/api/flagged/42/status", map[string]any{"status": "resolved"}, 404, CodeNotFound},
		{"remediation without id", "POST", "/api/remediation/generate", map[string]any{}, 400, CodeInvalidPayload},
		{"remediation unknown item", "POST", "/api/remediation/generate", map[string]any{"flagged_id": 42}, 404, CodeNotFound},
		{"unknown route", "GET", "/api/nope", nil, 404, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestHandler_UploadErrors(t *testing.T) {
	env := newTestEnv(t)
	app := testApp(t, env)

	resp := uploadFiles(t, app, map[string]string{"notes.exe": "binary"})
	assert.Equal(t, 400, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, CodeInvalidPayload, body.Error.Code)

	resp = uploadFiles(t, app, map[string]string{"blank.md": "  "})
	assert.Equal(t, 422, resp.StatusCode)
	body = decode[errorBody](t, resp)
	assert.Equal(t, CodeIndexFailed, body.Error.Code)

	resp = doRequest(t, app, "POST", "/api/upload", map[string]any{"files": "x"})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHandler_Index(t *testing.T) {
	env := newTestEnv(t)
	app := testApp(t, env)

	resp := doRequest(t, app, "GET", "/api", nil)
	require.Equal(t, 200, resp.StatusCode)
	body := decode[struct {
		Endpoints []string `json:"endpoints"`
	}](t, resp)
	assert.Contains(t, body.Endpoints, "POST /api/extract-rules")
}

func TestErrorHandler_UnknownError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Get("/boom", func(c *fiber.Ctx) error { return fmt.Errorf("database on fire") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "fire")
}
