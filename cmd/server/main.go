package main

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Simplici0/simulador-reforma/internal/config"
	"github.com/Simplici0/simulador-reforma/internal/db"
	"github.com/Simplici0/simulador-reforma/internal/logger"
	"github.com/Simplici0/simulador-reforma/internal/migrations"
	"github.com/Simplici0/simulador-reforma/internal/report"
	"github.com/Simplici0/simulador-reforma/internal/seed"
	"github.com/Simplici0/simulador-reforma/internal/store"
	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
	"github.com/Simplici0/simulador-reforma/web"
)

type server struct {
	cfg      config.Config
	log      *zap.Logger
	profiles *store.RateProfiles
}

type baseViewData struct {
	ErrorMessage   string
	SuccessMessage string
}

func main() {
	cfg := config.Load()

	newLogger := logger.New
	if cfg.IsDev() {
		newLogger = logger.NewConsole
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	cfg.LogWarnings(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := migrations.Up(ctx, database); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}
	stats, err := seed.Run(ctx, database)
	if err != nil {
		log.Fatal("failed to seed rate profiles", zap.Error(err))
	}
	log.Info("seed finished", zap.Int("inserts", stats.Inserts))

	srv := &server{cfg: cfg, log: log, profiles: store.NewRateProfiles(database)}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("addr", httpServer.Addr), zap.String("variant", cfg.BaseVariant))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", s.handleSimulationForm)
	r.Post("/simulate", s.handleSimulate)
	r.Post("/simulate/export", s.handleSimulateExport)
	r.Get("/nfe", s.handleNFeForm)
	r.Post("/nfe", s.handleNFeUpload)
	r.Get("/admin/rates", s.handleAdminRatesForm)
	r.Post("/admin/rates", s.handleAdminRatesCreate)
	r.Post("/admin/rates/{id}", s.handleAdminRatesUpdate)
	return r
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// defaultVariant is the configured base variant, falling back to CascadingBase.
func (s *server) defaultVariant() taxcalc.BaseVariant {
	v, err := taxcalc.ParseBaseVariant(s.cfg.BaseVariant)
	if err != nil {
		s.log.Warn("invalid BASE_VARIANT, using cascading", zap.String("value", s.cfg.BaseVariant))
		return taxcalc.CascadingBase
	}
	return v
}

var templateFuncs = template.FuncMap{
	"brl":     report.FormatBRL,
	"num":     report.FormatNumber,
	"width":   func(v float64) string { return report.Cents(v).StringFixed(2) },
	"variant": func(v taxcalc.BaseVariant) string { return v.String() },
}

func (s *server) renderTemplate(w http.ResponseWriter, status int, page string, data any) {
	templates, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(web.Templates(),
		"templates/layout.html",
		"templates/partials.html",
		"templates/"+page,
	)
	if err != nil {
		s.log.Error("parse template", zap.String("page", page), zap.Error(err))
		http.Error(w, "failed to parse template", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.Error("render template", zap.String("page", page), zap.Error(err))
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
