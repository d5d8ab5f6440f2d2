package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/DoyleJ11/hackathon-judging/internal/audit"
	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/confirm"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/httpapi"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
	"github.com/DoyleJ11/hackathon-judging/internal/judging"
	"github.com/DoyleJ11/hackathon-judging/internal/logging"
	"github.com/DoyleJ11/hackathon-judging/internal/notify"
	"github.com/DoyleJ11/hackathon-judging/internal/roster"
)

func main() {
	env := config.LoadEnv(".env")
	log, err := logging.New(env.LogLevel, env.AppEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(env, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(env config.Env, log *zap.Logger) error {
	ev, err := config.Load(env.EventPath)
	if err != nil {
		return err
	}
	log.Info("event loaded", zap.String("path", env.EventPath), zap.Int("rooms", len(ev.Rooms)), zap.Int("tracks", len(ev.Tracks)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx)

	var db *gorm.DB
	var dir directory.Directory = directory.NewMemory()
	if env.DatabaseURL != "" {
		if db, err = directory.Open(env.DatabaseURL); err != nil {
			return err
		}
		if dir, err = directory.NewStore(db); err != nil {
			return err
		}
		log.Info("using postgres team directory")
	} else {
		log.Warn("DATABASE_URL not set, team directory is in memory only")
	}

	fileLog, err := audit.NewFileLog(env.AuditLog)
	if err != nil {
		return err
	}
	writers := audit.Multi{fileLog}
	if db != nil {
		dbLog, err := audit.NewDBLog(db)
		if err != nil {
			return err
		}
		writers = append(writers, dbLog)
	}
	sink := audit.NewSink(writers, h, ev, log.Named("audit"))

	// prompts go to the operator's own topic
	confirmer := confirm.NewManager(ev.ConfirmTimeout, confirm.PrompterFunc(func(ctx context.Context, p confirm.Prompt) error {
		return h.Publish(ctx, hub.Message{
			Topic: hub.OperatorTopic(p.Operator),
			Kind:  hub.KindPrompt,
			Body:  p.Message,
			Data:  p,
		})
	}), log.Named("confirm"))

	svc := judging.NewService(ev, dir, confirmer, sink, notify.NewHub(h), log.Named("judging"))

	var verifier *roster.Verifier
	if env.RosterPath != "" {
		ro, err := roster.LoadFile(env.RosterPath)
		if err != nil {
			return err
		}
		var store roster.Store = roster.NewMemoryStore()
		if db != nil {
			if store, err = roster.NewDBStore(db); err != nil {
				return err
			}
		}
		verifier = roster.NewVerifier(ro, store, log.Named("roster"))
		log.Info("registration roster loaded", zap.Int("registrants", ro.Len()))
	}

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Event:         ev,
		Service:       svc,
		Directory:     dir,
		Confirmations: confirmer,
		Verifier:      verifier,
		Hub:           h,
		Log:           log.Named("http"),
		PlannerLogDir: env.PlannerLogDir,
	})
	srv := &http.Server{
		Addr:              env.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// mutating commands wait out the confirmation window
		WriteTimeout: ev.ConfirmTimeout + 30*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", env.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Send(shutdownCtx, hub.Shutdown{})
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
