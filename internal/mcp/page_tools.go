package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devlink-mcp-server/internal/errs"
)

const defaultPageOpTimeout = 15 * time.Second

func pageOpContext(ctx context.Context, args map[string]interface{}) (context.Context, context.CancelFunc) {
	timeout := getDurationMsArg(args, "timeout_ms")
	if timeout == 0 {
		timeout = defaultPageOpTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

var timeoutProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Timeout in milliseconds (default: 15000)",
}

type EvaluateScriptTool struct {
	automation *Context
}

func (t *EvaluateScriptTool) Name() string { return "evaluate-script" }
func (t *EvaluateScriptTool) Description() string {
	return `Run a JavaScript function in the current page and return its JSON value.

The script must be a function expression; promises are awaited:
  () => document.title
  async () => (await fetch('/api/health')).status

Requires a live session (NOT_CONNECTED otherwise).

Returns: {success, result} or {success: false, error, error_type}.`
}
func (t *EvaluateScriptTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"script": map[string]interface{}{
				"type":        "string",
				"description": "Function expression to evaluate",
			},
			"timeout_ms": timeoutProperty,
		},
		"required": []string{"script"},
	}
}
func (t *EvaluateScriptTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	script := strings.TrimSpace(getStringArg(args, "script"))
	if script == "" {
		return nil, errs.New(errs.InvalidArgument, "", "script is required")
	}
	h, err := t.automation.Manager().Handle()
	if err != nil {
		return nil, err
	}

	ctx, cancel := pageOpContext(ctx, args)
	defer cancel()
	raw, err := h.Evaluate(ctx, script)
	if err != nil {
		return map[string]interface{}{
			"success":    false,
			"error":      formatJSError(err),
			"error_type": classifyJSError(err),
		}, nil
	}
	return map[string]interface{}{
		"success": true,
		"result":  json.RawMessage(raw),
	}, nil
}

type GetPageInfoTool struct {
	automation *Context
}

func (t *GetPageInfoTool) Name() string { return "get-page-info" }
func (t *GetPageInfoTool) Description() string {
	return `Read the current page of the live session: id, URL, path and title.

Returns: {page: {id, url, path, title}, connection_id}.`
}
func (t *GetPageInfoTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timeout_ms": timeoutProperty,
		},
	}
}
func (t *GetPageInfoTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	h, err := t.automation.Manager().Handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := pageOpContext(ctx, args)
	defer cancel()
	page, err := h.CurrentPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("read current page: %w", err)
	}
	return map[string]interface{}{
		"page":          page,
		"connection_id": t.automation.Manager().ConnectionID(),
	}, nil
}

type NavigatePageTool struct {
	automation *Context
}

func (t *NavigatePageTool) Name() string { return "navigate-page" }
func (t *NavigatePageTool) Description() string {
	return `Navigate the current page to a URL and wait for load.

The navigation starts a new console/network segment; earlier entries move to the
preserved segments (see include_preserved on the list tools).

Returns: {success, page}.`
}
func (t *NavigatePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Destination URL",
			},
			"timeout_ms": timeoutProperty,
		},
		"required": []string{"url"},
	}
}
func (t *NavigatePageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := strings.TrimSpace(getStringArg(args, "url"))
	if url == "" {
		return nil, errs.New(errs.InvalidArgument, "", "url is required")
	}
	h, err := t.automation.Manager().Handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := pageOpContext(ctx, args)
	defer cancel()
	if err := h.Navigate(ctx, url); err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("navigate %s: %v", url, err)}, nil
	}
	page, err := h.CurrentPage(ctx)
	if err != nil {
		return map[string]interface{}{"success": true, "page": map[string]string{"url": url}}, nil
	}
	return map[string]interface{}{"success": true, "page": page}, nil
}

type TakeScreenshotTool struct {
	automation *Context
}

func (t *TakeScreenshotTool) Name() string { return "take-screenshot" }
func (t *TakeScreenshotTool) Description() string {
	return `Capture the current page as PNG and write it to disk.

Without save_path the file goes to ./screenshots/screenshot_<connection>_<unix>.png.

Returns: {success, file_path, size_bytes}.`
}
func (t *TakeScreenshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"full_page": map[string]interface{}{
				"type":        "boolean",
				"description": "Capture full scrollable page (default: false, viewport only)",
			},
			"save_path": map[string]interface{}{
				"type":        "string",
				"description": "Optional destination file",
			},
			"timeout_ms": timeoutProperty,
		},
	}
}
func (t *TakeScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	h, err := t.automation.Manager().Handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := pageOpContext(ctx, args)
	defer cancel()

	data, err := h.Screenshot(ctx, getBoolArg(args, "full_page", false))
	if err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("screenshot failed: %v", err)}, nil
	}

	savePath := getStringArg(args, "save_path")
	if savePath == "" {
		cwd, _ := os.Getwd()
		filename := fmt.Sprintf("screenshot_%s_%d.png", t.automation.Manager().ConnectionID(), time.Now().Unix())
		savePath = filepath.Join(cwd, "screenshots", filename)
	}
	if dir := filepath.Dir(savePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return map[string]interface{}{"success": false, "error": fmt.Sprintf("failed to create directory: %v", err)}, nil
		}
	}
	if err := os.WriteFile(savePath, data, 0644); err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("failed to write screenshot: %v", err)}, nil
	}
	return map[string]interface{}{
		"success":    true,
		"file_path":  savePath,
		"size_bytes": len(data),
	}, nil
}
