package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/config"
	"github.com/Brownie44l1/trapcam/internal/gallery"
	"github.com/Brownie44l1/trapcam/internal/model"
)

// SessionCookie carries the visitor's gallery session id.
const SessionCookie = "trapcam_session"

// Models loads and exposes the classifier.
type Models interface {
	Load(ctx context.Context, weightsURL string) (model.Handle, error)
	Current() (model.Handle, string)
}

// runner is implemented by handles that accept a preprocessed tensor.
type runner interface {
	Run(inputData []float32) ([]float32, error)
}

type Handler struct {
	cfg      config.Config
	store    *gallery.Store
	models   Models
	log      logrus.FieldLogger
	tmpl     *template.Template
	upgrader websocket.Upgrader
}

func NewHandler(cfg config.Config, store *gallery.Store, models Models, log logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:    cfg,
		store:  store,
		models: models,
		log:    log,
		tmpl:   template.Must(template.New("index").Funcs(templateFuncs).Parse(indexTemplate)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ws", h.Watch)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))

		r.Get("/", h.Index)
		r.Post("/previous", h.pageAction(actionPrevious))
		r.Post("/next", h.pageAction(actionNext))
		r.Post("/predict", h.pageAction(actionPredict))
		r.Post("/folder", h.pageAction(actionFolder))

		r.Route("/api", func(r chi.Router) {
			r.Get("/gallery", h.GalleryState)
			r.Post("/gallery/{action}", h.GalleryAction)
			r.Post("/model", h.SwitchModel)
			r.Post("/predict", h.Predict)
			r.Post("/classify", h.PredictFromImage)
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, url := h.models.Current()
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "model": url})
}

// session returns the caller's session, creating one and setting the cookie
// when the request has none.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *gallery.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	s, created := h.store.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	_, modelURL := h.models.Current()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := h.tmpl.Execute(w, pageData{
		State:       s.State(),
		Model:       modelURL,
		Development: h.cfg.Development,
	})
	if err != nil {
		h.log.WithError(err).Error("rendering gallery")
	}
}

func (h *Handler) pageAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := h.session(w, r)
		if err := h.apply(r, s, action); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *Handler) GalleryState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(w, r).State())
}

func (h *Handler) GalleryAction(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if err := h.apply(r, s, chi.URLParam(r, "action")); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUnknownAction) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

type modelRequest struct {
	Dataset string `json:"dataset"`
	Weights string `json:"weights"`
}

// SwitchModel points the classifier at another dataset/weights pair and
// reclassifies every open gallery.
func (h *Handler) SwitchModel(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Development {
		http.Error(w, "Model loading is disabled in development mode", http.StatusConflict)
		return
	}

	var req modelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Dataset == "" || req.Weights == "" {
		http.Error(w, "dataset and weights are required", http.StatusBadRequest)
		return
	}

	url := config.WeightsURL(h.cfg.BaseURL, req.Dataset, req.Weights)
	if _, err := h.models.Load(r.Context(), url); err != nil {
		h.log.WithField("model", url).WithError(err).Error("model switch failed")
		http.Error(w, "Model loading failed", http.StatusBadGateway)
		return
	}
	h.store.ModelChanged()

	writeJSON(w, http.StatusOK, map[string]string{"model": url})
}

// Predict classifies a preprocessed input tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	handle, _ := h.models.Current()
	if handle == nil {
		http.Error(w, "No model loaded", http.StatusServiceUnavailable)
		return
	}
	run, ok := handle.(runner)
	if !ok {
		http.Error(w, "Model does not accept raw tensors", http.StatusNotImplemented)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	out, err := run.Run(req.Image)
	if err != nil {
		h.log.WithError(err).Warn("prediction error")
		http.Error(w, fmt.Sprintf("Prediction failed: %v", err), http.StatusBadRequest)
		return
	}
	if len(out) == 0 {
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.Decide(0, out[0], handle.Classes()))
}

// PredictFromImage classifies an uploaded JPEG or PNG.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	handle, _ := h.models.Current()
	if handle == nil {
		http.Error(w, "No model loaded", http.StatusServiceUnavailable)
		return
	}

	// Parse multipart form (10MB max)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"file":   header.Filename,
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})

	score, err := handle.Score(r.Context(), img)
	if err != nil {
		log.WithError(err).Error("prediction error")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	result := model.Decide(0, score, handle.Classes())
	log.WithField("label", result.String()).Info("upload classified")
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
