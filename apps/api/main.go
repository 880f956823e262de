package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/campusdesk/portal/apps/api/echo"
	"github.com/campusdesk/portal/core"
	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/dashboard"
	"github.com/campusdesk/portal/core/directory"
	"github.com/campusdesk/portal/core/portal"
	emailsvc "github.com/campusdesk/portal/services/email"
	logsvc "github.com/campusdesk/portal/services/logger"
	sessionsvc "github.com/campusdesk/portal/services/session"
	"github.com/campusdesk/portal/storage/database"
	inmemdir "github.com/campusdesk/portal/storage/directory/inmem"
	restdir "github.com/campusdesk/portal/storage/directory/rest"
	sqlxdir "github.com/campusdesk/portal/storage/directory/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	newStore, onSignUp := setUpSessionStore(conf, logger)
	registry := auth.NewRegistry(newStore, logger)
	defer registry.Close()

	repo, err := setUpDirectory(conf, onSignUp)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up role directory: %v", err), err)
	}

	portalSvc := portal.NewService(conf, repo, mailSvc, logger)
	dashboardSvc := dashboard.NewService()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			Registry:     registry,
			PortalSvc:    portalSvc,
			DashboardSvc: dashboardSvc,
			Repo:         repo,
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpSessionStore returns the per-browser-session store factory. The
// in-memory provider also returns its sign-up hook registrar so the DEV
// directory can mirror the hosted profile trigger.
func setUpSessionStore(conf *core.Config, logger core.Logger) (func() auth.Store, func(fn func(userID string))) {
	switch conf.SessionStore.Provider {
	case "inmem":
		backend := sessionsvc.NewBackend()
		return backend.NewSession, backend.OnSignUp
	default:
		client := sessionsvc.NewClient(conf, logger)
		return client.NewSession, nil
	}
}

func setUpDirectory(conf *core.Config, onSignUp func(fn func(userID string))) (directory.Repository, error) {
	switch conf.Directory.Backend {
	case "postgres":
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return sqlxdir.New(db), nil
	case "rest":
		return restdir.New(conf), nil
	default:
		dir := inmemdir.New()
		if onSignUp != nil {
			// stand-in for the hosted store's post-signup profile trigger
			onSignUp(dir.AddProfile)
		}
		return dir, nil
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
