package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"himmel.app/internal/auth"
	"himmel.app/internal/config"
	"himmel.app/internal/httpapi"
	"himmel.app/internal/mail"
	"himmel.app/internal/obs"
	"himmel.app/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.MustLoad()

	store, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Mail transport: real SMTP when configured, log-and-drop otherwise.
	var mailer mail.Sender = mail.LogSender{}
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)
	}

	svc, err := auth.NewService(store.Users(), store.Roles(), auth.Config{
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		Issuer:          cfg.Auth.Issuer,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
		BcryptCost:      cfg.Auth.BcryptCost,
		FrontendURL:     cfg.Auth.FrontendURL,
	}, auth.WithMailer(mailer))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, auth.NewGoogleTokenVerifier(), httpapi.ReadyProbe{DB: store.DB()}, httpapi.Config{
		Version:       version,
		SecureCookies: cfg.HTTP.SecureCookies,
		RateBurst:     cfg.Rate.Burst,
		RatePerSec:    cfg.Rate.PerSec,
		SignInBurst:   cfg.Rate.SignInBurst,
		SignInPerMin:  float64(cfg.Rate.SignInPerMin),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting himmel-api %s on %s (env=%s)", version, srv.Addr, cfg.Env)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
