package httpserver

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appdefects "github.com/bryanwahyu/defect-tracker/internal/application/defects"
	appuploads "github.com/bryanwahyu/defect-tracker/internal/application/uploads"
	domai "github.com/bryanwahyu/defect-tracker/internal/domain/ai"
	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
	"github.com/bryanwahyu/defect-tracker/internal/domain/uploads"
	"github.com/bryanwahyu/defect-tracker/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options carries the optional parts of the HTTP stack.
type Options struct {
	Logger         *slog.Logger
	Metrics        *middleware.Metrics
	RateLimiter    *middleware.RateLimiter
	HealthCheckers map[string]middleware.HealthChecker
	APIKeys        map[string]string
	CORSOrigins    []string
	MaxUploadBytes int64
}

type Router struct {
	defectsSvc *appdefects.Service
	uploadsSvc *appuploads.Service
	opts       Options
	tmpl       *template.Template
}

func NewRouter(defectsSvc *appdefects.Service, uploadsSvc *appuploads.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	r := &Router{
		defectsSvc: defectsSvc,
		uploadsSvc: uploadsSvc,
		opts:       opts,
		tmpl:       template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP, middleware.Logging(opts.Logger))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(chimw.Recoverer, middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.RateLimit)
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler(opts.HealthCheckers))
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/process-data", http.StatusFound)
	})
	mux.Get("/process-data", r.wrap(r.handleProcessPage))
	mux.Get("/process-data/image/{id}", r.wrap(r.handleImage))
	mux.Post("/process-data/assign-image", r.wrap(r.handleAssign))

	mux.Group(func(rt chi.Router) {
		origins := opts.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		rt.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
		rt.Get("/process-data.json", r.wrap(r.handleProcessJSON))
		rt.Post("/upload-data", r.wrap(r.handleUpload))
		rt.Post("/process-data/persist", r.wrap(r.handlePersist))
		rt.Post("/process-data/classify", r.wrap(r.handleClassify))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps domain errors to status codes in one place.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, uploads.ErrImageNotFound), errors.Is(err, defects.ErrNoSource):
			status = http.StatusNotFound
		case errors.Is(err, uploads.ErrInvalidUpload):
			status = http.StatusBadRequest
		case errors.Is(err, domai.ErrQuotaExceeded):
			status = http.StatusTooManyRequests
		case errors.Is(err, defects.ErrRepositoryUnavailable), errors.Is(err, domai.ErrNotConfigured):
			status = http.StatusServiceUnavailable
		}
		msg := err.Error()
		if status == http.StatusInternalServerError {
			r.opts.Logger.Error("request failed", "method", req.Method, "path", req.URL.Path,
				"request_id", chimw.GetReqID(req.Context()), "err", err)
			msg = "internal error"
		}
		writeJSON(w, status, map[string]any{"ok": false, "error": msg})
	}
}

// writeJSON encodes v before touching w, so an encoding failure still reaches wrap as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

type pageData struct {
	Error       string
	Flash       *Flash
	Source      string
	SourceKind  defects.SourceKind
	Defects     []defects.Defect
	Records     []defects.PreparedRecord
	Images      []uploads.ImageEntry
	Assignments map[string]string
}

// GET /process-data
func (r *Router) handleProcessPage(w http.ResponseWriter, req *http.Request) error {
	data := pageData{Flash: popFlash(w, req)}
	res := r.defectsSvc.Load(req.Context())
	r.opts.Metrics.DefectsLoaded(string(res.Kind), len(res.Defects))

	if !res.Found() {
		data.Error = res.Reason
		return r.render(w, data)
	}

	meta := r.defectsSvc.LatestMetadata()
	data.Source = filepath.Base(res.SourcePath)
	data.SourceKind = res.Kind
	data.Defects = res.Defects
	data.Records = defects.Prepare(res.Defects)
	data.Images = withImageURLs(meta.ImageEntries())
	data.Assignments = meta.AssignmentMap()
	if len(res.Defects) == 0 {
		data.Error = res.Reason
	}
	r.opts.Logger.Info("prepared defect records", "count", len(data.Records), "source", res.SourcePath, "kind", res.Kind)
	return r.render(w, data)
}

func (r *Router) render(w http.ResponseWriter, data pageData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.tmpl.ExecuteTemplate(w, "process_result.html", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

type processResponse struct {
	OK          bool                     `json:"ok"`
	Count       int                      `json:"count"`
	Source      defects.SourceKind       `json:"source"`
	Records     []defects.PreparedRecord `json:"records"`
	Images      []uploads.ImageEntry     `json:"images"`
	Assignments map[string]string        `json:"assignments"`
}

// GET /process-data.json
func (r *Router) handleProcessJSON(w http.ResponseWriter, req *http.Request) error {
	res := r.defectsSvc.Load(req.Context())
	r.opts.Metrics.DefectsLoaded(string(res.Kind), len(res.Defects))
	if !res.Found() {
		return writeJSON(w, http.StatusNotFound, map[string]any{
			"ok":      false,
			"error":   "No GLB/JSON defect file found.",
			"records": []defects.PreparedRecord{},
		})
	}

	meta := r.defectsSvc.LatestMetadata()
	records := defects.Prepare(res.Defects)
	return writeJSON(w, http.StatusOK, processResponse{
		OK:          true,
		Count:       len(records),
		Source:      res.Kind,
		Records:     records,
		Images:      withImageURLs(meta.ImageEntries()),
		Assignments: meta.AssignmentMap(),
	})
}

func withImageURLs(entries []uploads.ImageEntry) []uploads.ImageEntry {
	for i := range entries {
		entries[i].URL = "/process-data/image/" + url.PathEscape(entries[i].ID)
	}
	return entries
}

// GET /process-data/image/{id}
func (r *Router) handleImage(w http.ResponseWriter, req *http.Request) error {
	path, err := r.uploadsSvc.ImagePath(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", uploads.ErrImageNotFound, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	http.ServeContent(w, req, fi.Name(), fi.ModTime(), f)
	return nil
}

var assignFailures = map[error]string{
	uploads.ErrNoMetadata:       "No upload metadata available. Upload a GLB/PDF first.",
	uploads.ErrImageRequired:    "Missing image selection.",
	uploads.ErrImageUnavailable: "Selected image is no longer available.",
	uploads.ErrDefectRequired:   "Select a defect before assigning an image.",
}

// POST /process-data/assign-image
// Form: action=assign|unassign, image_id, defect_id. Always redirects back with a flash message.
func (r *Router) handleAssign(w http.ResponseWriter, req *http.Request) error {
	back := func(category, message string) error {
		setFlash(w, category, message)
		http.Redirect(w, req, "/process-data", http.StatusSeeOther)
		return nil
	}

	if err := req.ParseForm(); err != nil {
		return back("error", "Invalid form submission.")
	}
	cmd := appuploads.AssignCommand{
		Action:   appuploads.ParseAction(req.PostFormValue("action")),
		ImageID:  middleware.SanitizeString(req.PostFormValue("image_id")),
		DefectID: middleware.SanitizeString(req.PostFormValue("defect_id")),
	}
	if err := middleware.ValidateIdentifier("image_id", cmd.ImageID); err != nil {
		return back("error", err.Error())
	}
	if err := middleware.ValidateIdentifier("defect_id", cmd.DefectID); err != nil {
		return back("error", err.Error())
	}

	res, err := r.uploadsSvc.Assign(req.Context(), cmd)
	if err != nil {
		for target, msg := range assignFailures {
			if errors.Is(err, target) {
				return back("error", msg)
			}
		}
		r.opts.Logger.Error("assignment failed", "err", err)
		return back("error", "Failed to save the assignment.")
	}

	r.opts.Metrics.Assignment(string(res.Action))
	switch {
	case res.Action == appuploads.ActionUnassign && res.Removed:
		return back("success", "Image unassigned from defect.")
	case res.Action == appuploads.ActionUnassign:
		return back("info", "Image was not assigned.")
	default:
		return back("success", fmt.Sprintf("Linked image to defect %s.", res.DefectID))
	}
}

// POST /upload-data
// Multipart field "files", repeatable.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		return fmt.Errorf("%w: %v", uploads.ErrInvalidUpload, err)
	}
	defer req.MultipartForm.RemoveAll()

	headers := req.MultipartForm.File["files"]
	files := make([]appuploads.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		if err := middleware.ValidateUploadName(name); err != nil {
			return fmt.Errorf("%w: %v", uploads.ErrInvalidUpload, err)
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		files = append(files, appuploads.IncomingFile{Name: name, Body: f})
	}

	meta, err := r.uploadsSvc.Upload(req.Context(), files)
	if err != nil {
		return err
	}
	for _, f := range files {
		r.opts.Metrics.Upload(string(uploads.KindOf(f.Name)))
	}
	return writeJSON(w, http.StatusCreated, map[string]any{
		"ok":        true,
		"upload_id": meta.UploadID,
		"scan_file": meta.ScanFile,
		"images":    withImageURLs(meta.ImageEntries()),
		"documents": meta.Documents,
	})
}

// POST /process-data/persist
func (r *Router) handlePersist(w http.ResponseWriter, req *http.Request) error {
	n, err := r.defectsSvc.Persist(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"ok": true, "saved": n})
}

// POST /process-data/classify
func (r *Router) handleClassify(w http.ResponseWriter, req *http.Request) error {
	out, err := r.defectsSvc.Classify(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(out), "classifications": out})
}
