package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bryanwahyu/defect-tracker/internal/application"
	appdefects "github.com/bryanwahyu/defect-tracker/internal/application/defects"
	appuploads "github.com/bryanwahyu/defect-tracker/internal/application/uploads"
	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
	"github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
	"github.com/bryanwahyu/defect-tracker/internal/infra/gltf"
	"github.com/bryanwahyu/defect-tracker/internal/infra/metadata"
	"github.com/bryanwahyu/defect-tracker/internal/middleware"
)

type testEnv struct {
	layout  application.Layout
	store   *metadata.FileStore
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	layout := application.NewLayout(t.TempDir())
	store := metadata.NewFileStore(layout.MetadataFile())
	defectsSvc := &appdefects.Service{
		Snapshots: gltf.NewExtractor(logger),
		Metadata:  store,
		Layout:    layout,
		Logger:    logger,
	}
	uploadsSvc := &appuploads.Service{Store: store, Layout: layout, Logger: logger}
	h := NewRouter(defectsSvc, uploadsSvc, Options{Logger: logger, Metrics: middleware.NewMetrics()})
	return &testEnv{layout: layout, store: store, handler: h}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// seed writes a defects.json with D1/D2 and metadata with two images, I1 assigned to D1.
func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	mustWrite(t, e.layout.DefectsFile(), []byte(`{"source_file":"scan.e57","defects":[
		{"id":"D1","description":"crack","coordinates":{"x":1,"y":2,"z":3}},
		{"id":"D2","description":"leak","coordinates":{"x":4,"y":5,"z":6}}]}`))

	dir := filepath.Join(e.layout.ImagesRoot(), "u1")
	mustWrite(t, filepath.Join(dir, "a.png"), []byte("PNGDATA"))
	mustWrite(t, filepath.Join(dir, "b.png"), []byte("PNGDATA2"))
	meta := &uploads.Metadata{
		ImageDir: dir,
		Images: []uploads.Image{
			{ID: "I1", File: "a.png", Page: json.RawMessage("1")},
			{ID: "I2", File: "b.png", Page: json.RawMessage("2")},
			{ID: "EVIL", File: "../../../defects.json"},
		},
	}
	meta.Assign("D1", "I1")
	if err := e.store.Save(meta); err != nil {
		t.Fatal(err)
	}
}

func TestProcessJSONNoSource(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != false || body["error"] != "No GLB/JSON defect file found." {
		t.Fatalf("unexpected body: %v", body)
	}
	if recs, ok := body["records"].([]any); !ok || len(recs) != 0 {
		t.Fatalf("records should be an empty list: %v", body["records"])
	}
}

func TestProcessJSONDropsNonFiniteEntries(t *testing.T) {
	e := newTestEnv(t)
	mustWrite(t, e.layout.DefectsFile(), []byte(`{"defects":[
		{"id":"OK","coordinates":{"x":1,"y":2,"z":3}},
		{"id":"BAD","coordinates":{"x":"nan","y":0,"z":0}}]}`))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		OK      bool                     `json:"ok"`
		Records []defects.PreparedRecord `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || len(body.Records) != 1 || body.Records[0].DefectID != "OK" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeJSON(rec, http.StatusOK, map[string]float64{"x": math.NaN()}); err == nil {
		t.Fatalf("expected an encode error")
	}
	if rec.Body.Len() != 0 || rec.Header().Get("Content-Type") != "" {
		t.Fatalf("nothing should be written on encode failure, got %q", rec.Body.String())
	}
}

func TestProcessJSON(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		OK          bool                     `json:"ok"`
		Count       int                      `json:"count"`
		Source      string                   `json:"source"`
		Records     []defects.PreparedRecord `json:"records"`
		Images      []uploads.ImageEntry     `json:"images"`
		Assignments map[string]string        `json:"assignments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || body.Count != 2 || body.Source != "json" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Records[0].WKTPoint != "POINT Z (1.0 2.0 3.0)" || body.Records[0].SourceFile != "scan.e57" {
		t.Fatalf("unexpected record: %+v", body.Records[0])
	}
	if len(body.Images) != 3 || body.Images[0].URL != "/process-data/image/I1" {
		t.Fatalf("unexpected images: %+v", body.Images)
	}
	if body.Images[0].AssignedDefect == nil || *body.Images[0].AssignedDefect != "D1" || body.Images[1].AssignedDefect != nil {
		t.Fatalf("unexpected assigned_defect values: %+v", body.Images)
	}
	if body.Assignments["D1"] != "I1" {
		t.Fatalf("unexpected assignments: %v", body.Assignments)
	}
}

func TestServeImage(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data/image/I1", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("without metadata: status = %d, want 404", rec.Code)
	}

	e.seed(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data/image/I2", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "PNGDATA2" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for _, id := range []string{"NOPE", "EVIL"} {
		if rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data/image/"+id, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("image %s: status = %d, want 404", id, rec.Code)
		}
	}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func flashFrom(t *testing.T, rec *httptest.ResponseRecorder) *Flash {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name != flashCookie {
			continue
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(c)
		return popFlash(httptest.NewRecorder(), req)
	}
	return nil
}

func TestServeImageWithNaiveTimestamp(t *testing.T) {
	e := newTestEnv(t)
	dir := filepath.Join(e.layout.ImagesRoot(), "u2")
	mustWrite(t, filepath.Join(dir, "a.png"), []byte("PNGDATA"))
	doc, err := json.Marshal(map[string]any{
		"uploaded_at": "2024-05-01T10:00:00.123456",
		"image_dir":   dir,
		"images":      []map[string]any{{"id": "I1", "file": "a.png"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, e.layout.MetadataFile(), doc)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data/image/I1", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "PNGDATA" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestAssignImage(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(postForm("/process-data/assign-image", url.Values{"image_id": {"I1"}, "defect_id": {"D1"}}))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/process-data" {
		t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f == nil || f.Category != "error" || !strings.HasPrefix(f.Message, "No upload metadata available") {
		t.Fatalf("unexpected flash: %+v", f)
	}

	e.seed(t)
	tests := []struct {
		name     string
		form     url.Values
		category string
		message  string
	}{
		{"missing image", url.Values{"defect_id": {"D1"}}, "error", "Missing image selection."},
		{"unknown image", url.Values{"image_id": {"ZZ"}, "defect_id": {"D1"}}, "error", "Selected image is no longer available."},
		{"missing defect", url.Values{"image_id": {"I2"}}, "error", "Select a defect before assigning an image."},
		{"move image", url.Values{"action": {"assign"}, "image_id": {"I1"}, "defect_id": {"D2"}}, "success", "Linked image to defect D2."},
		{"unassign", url.Values{"action": {"unassign"}, "image_id": {"I1"}}, "success", "Image unassigned from defect."},
		{"unassign again", url.Values{"action": {"unassign"}, "image_id": {"I1"}}, "info", "Image was not assigned."},
	}
	for _, tt := range tests {
		rec := e.do(postForm("/process-data/assign-image", tt.form))
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("%s: status = %d", tt.name, rec.Code)
		}
		f := flashFrom(t, rec)
		if f == nil || f.Category != tt.category || f.Message != tt.message {
			t.Fatalf("%s: flash = %+v, want %s/%q", tt.name, f, tt.category, tt.message)
		}
	}

	meta, err := e.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m := meta.AssignmentMap(); len(m) != 0 {
		t.Fatalf("expected no assignments left, got %v", m)
	}
}

func TestAssignImageKeepsSurroundingSpaces(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t)

	rec := e.do(postForm("/process-data/assign-image", url.Values{"image_id": {"I2"}, "defect_id": {" Snapshot 01 "}}))
	if f := flashFrom(t, rec); f == nil || f.Message != "Linked image to defect  Snapshot 01 ." {
		t.Fatalf("unexpected flash: %+v", f)
	}
	meta, err := e.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := meta.AssignmentMap()[" Snapshot 01 "]; got != "I2" {
		t.Fatalf("assignments = %v", meta.AssignmentMap())
	}
}

func TestProcessPage(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/process-data", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No GLB/JSON defect file found.") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	e.seed(t)
	req := httptest.NewRequest(http.MethodGet, "/process-data", nil)
	setFlashRec := httptest.NewRecorder()
	setFlash(setFlashRec, "success", "Linked image to defect D1.")
	for _, c := range setFlashRec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = e.do(req)
	body := rec.Body.String()
	for _, want := range []string{"Linked image to defect D1.", "POINT Z (4.0 5.0 6.0)", `src="/process-data/image/I2"`, "Unassign from D1"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPersistAndClassifyUnavailable(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/process-data/persist", "/process-data/classify"} {
		rec := e.do(httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestUpload(t *testing.T) {
	e := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"scan.gltf":    `{"nodes":[{"name":"Snapshot_1","translation":[1,2,3]}]}`,
		"defects.json": `{"defects":[]}`,
	} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload-data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/process-data.json", nil))
	var body struct {
		Source  string                   `json:"source"`
		Records []defects.PreparedRecord `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Source != "glb" || len(body.Records) != 1 || body.Records[0].DefectID != "Snapshot_1" {
		t.Fatalf("uploaded scan not used: %+v", body)
	}
}

func TestUploadRejectsBadRequests(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/upload-data", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	if rec := e.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	e := newTestEnv(t)
	for path, want := range map[string]int{
		"/health":  http.StatusOK,
		"/ready":   http.StatusOK,
		"/live":    http.StatusOK,
		"/metrics": http.StatusOK,
		"/":        http.StatusFound,
	} {
		if rec := e.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}
}
