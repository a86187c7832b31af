package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/task"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `[{"path": "/usr/bin/nc", "filename": "nc"}]`,
		})
	}))
	t.Cleanup(model.Close)

	cfg := common.DefaultConfig()
	cfg.Ollama.URL = model.URL
	cfg.Ollama.TimeoutSeconds = 5
	cfg.Ollama.MaxRetries = 0
	cfg.OutputDir = t.TempDir()
	cfg.Web.UploadFolder = t.TempDir()

	store, err := task.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	runner := task.NewRunner(cfg, store, task.NewProgressRegistry(), nil, nil)
	srv := New(cfg, "", store, runner, nil, nil, nil)
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)
	return srv, api
}

func workbookBytes(t *testing.T, alerts []string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "alert")
	for i, a := range alerts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetCellValue(sheet, cell, a)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadWorkbook(t *testing.T, api *httptest.Server, filename string, body []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatal(err)
	}
	_ = mw.Close()

	resp, err := http.Post(api.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) task.Task {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var tk task.Task
	if err := json.NewDecoder(resp.Body).Decode(&tk); err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestServerUploadProcessDownload(t *testing.T) {
	_, api := newTestServer(t)

	resp := uploadWorkbook(t, api, "alerts.xlsx", workbookBytes(t, []string{"exec of /bin/nc"}))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	tk := decodeTask(t, resp)
	if tk.ID == "" || tk.Status != task.StatusUploaded {
		t.Fatalf("upload task = %+v", tk)
	}

	// Preview shows the header before processing starts.
	previewResp, err := http.Get(api.URL + "/tasks/" + tk.ID + "/preview")
	if err != nil {
		t.Fatal(err)
	}
	var preview struct {
		Columns []string   `json:"columns"`
		Rows    [][]string `json:"rows"`
	}
	if err := json.NewDecoder(previewResp.Body).Decode(&preview); err != nil {
		t.Fatal(err)
	}
	_ = previewResp.Body.Close()
	if len(preview.Columns) != 1 || preview.Columns[0] != "alert" {
		t.Errorf("preview columns = %v", preview.Columns)
	}

	body, _ := json.Marshal(map[string]any{"selected_columns": []string{"alert"}})
	procResp, err := http.Post(api.URL+"/tasks/"+tk.ID+"/process", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	_ = procResp.Body.Close()
	if procResp.StatusCode != http.StatusAccepted {
		t.Fatalf("process status = %d", procResp.StatusCode)
	}

	// The run is asynchronous; poll until it reaches a terminal state.
	deadline := time.Now().Add(10 * time.Second)
	var final task.Task
	for {
		getResp, err := http.Get(api.URL + "/tasks/" + tk.ID)
		if err != nil {
			t.Fatal(err)
		}
		final = decodeTask(t, getResp)
		if final.Status == task.StatusCompleted || final.Status == task.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %q", final.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if final.Status != task.StatusCompleted {
		t.Fatalf("final status = %q (%s)", final.Status, final.Error)
	}
	if final.ValidCount != 1 {
		t.Errorf("valid count = %d, want 1", final.ValidCount)
	}

	dlResp, err := http.Get(api.URL + "/tasks/" + tk.ID + "/download/valid")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = dlResp.Body.Close() }()
	if dlResp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dlResp.StatusCode)
	}
	if got, _ := io.ReadAll(dlResp.Body); len(got) == 0 {
		t.Error("downloaded workbook is empty")
	}
}

func TestServerUploadRejectsExtension(t *testing.T) {
	_, api := newTestServer(t)
	resp := uploadWorkbook(t, api, "payload.exe", []byte("MZ"))
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerUnknownTask(t *testing.T) {
	_, api := newTestServer(t)
	resp, err := http.Get(api.URL + "/tasks/task_nope")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerDownloadBadKind(t *testing.T) {
	_, api := newTestServer(t)
	resp := uploadWorkbook(t, api, "alerts.xlsx", workbookBytes(t, []string{"x"}))
	tk := decodeTask(t, resp)

	dl, err := http.Get(api.URL + "/tasks/" + tk.ID + "/download/everything")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = dl.Body.Close() }()
	// No output yet, so either the kind check or the missing-results check
	// must refuse; both are client errors.
	if dl.StatusCode != http.StatusBadRequest && dl.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 400 or 404", dl.StatusCode)
	}
}

func TestServerDeleteTask(t *testing.T) {
	_, api := newTestServer(t)
	resp := uploadWorkbook(t, api, "alerts.xlsx", workbookBytes(t, []string{"x"}))
	tk := decodeTask(t, resp)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodDelete, api.URL+"/tasks/"+tk.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	getResp, err := http.Get(api.URL + "/tasks/" + tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = getResp.Body.Close() }()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", getResp.StatusCode)
	}
}

func TestServerConfigRoundTrip(t *testing.T) {
	_, api := newTestServer(t)

	getConfig := func() common.Config {
		t.Helper()
		resp, err := http.Get(api.URL + "/config")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		var cfg common.Config
		if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cfg := getConfig()
	if cfg.Ollama.URL == "" {
		t.Error("config url is empty")
	}

	cfg.Processing.MaxWorkers = 9
	body, _ := json.Marshal(cfg)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPut, api.URL+"/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", putResp.StatusCode)
	}
	if got := getConfig(); got.Processing.MaxWorkers != 9 {
		t.Errorf("config not applied: %d", got.Processing.MaxWorkers)
	}

	// An invalid config is refused.
	cfg.Processing.MaxWorkers = 0
	body, _ = json.Marshal(cfg)
	req, _ = http.NewRequestWithContext(context.Background(), http.MethodPut, api.URL+"/config", bytes.NewReader(body))
	badResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid config status = %d, want 400", badResp.StatusCode)
	}
}

func TestServerProgressWithoutTracker(t *testing.T) {
	_, api := newTestServer(t)
	resp := uploadWorkbook(t, api, "alerts.xlsx", workbookBytes(t, []string{"x"}))
	tk := decodeTask(t, resp)

	progResp, err := http.Get(api.URL + "/tasks/" + tk.ID + "/progress")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = progResp.Body.Close() }()
	if progResp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d", progResp.StatusCode)
	}
	var prog struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(progResp.Body).Decode(&prog); err != nil {
		t.Fatal(err)
	}
	if prog.Status != "pending" {
		t.Errorf("status = %q, want pending before processing", prog.Status)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alerts.xlsx", "alerts.xlsx"},
		{"../../etc/passwd", "passwd"},
		{`..\..\boot.ini`, "____boot.ini"},
		{"", "upload.xlsx"},
		{".", "upload.xlsx"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
