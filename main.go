package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/hook"
	"github.com/xperimental/githook/internal/repository"
	"github.com/xperimental/githook/internal/server"
	"github.com/xperimental/githook/internal/youtrack"
)

var (
	log = &logrus.Logger{
		Out: os.Stderr,
		Formatter: &logrus.TextFormatter{
			DisableTimestamp: true,
		},
		Hooks: logrus.LevelHooks{},
		Level: logrus.InfoLevel,
	}
)

func main() {
	cfg, err := config.GetConfig(os.Args)
	if err != nil {
		log.Fatalf("Error in configuration: %s", err)
	}
	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(formatter(cfg.LogFormat))

	trackerLog := log.WithField("component", "tracker")
	dial := func(ctx context.Context) (hook.Tracker, error) {
		conn, err := youtrack.New(ctx, trackerLog, cfg.Tracker)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	processor, err := hook.New(log.WithField("component", "hook"), cfg.Hook, dial)
	if err != nil {
		log.Fatalf("Error creating hook: %s", err)
	}

	if cfg.Replay.Path != "" {
		if err := runReplay(cfg.Replay, processor); err != nil {
			log.Fatalln(err)
		}
		return
	}

	srv, err := server.New(log.WithField("component", "server"), cfg.Server, processor)
	if err != nil {
		log.Fatalf("Error creating server: %s", err)
	}

	if err := runMain(srv); err != nil {
		log.Fatalln(err)
	}

	log.Infoln("Shutdown complete.")
}

func formatter(format string) logrus.Formatter {
	switch format {
	case config.LogFormatJSON:
		return &logrus.JSONFormatter{}
	case config.LogFormatText:
		return &logrus.TextFormatter{}
	}

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return &logrus.TextFormatter{
			DisableTimestamp: true,
		}
	}

	return &logrus.JSONFormatter{}
}

func runMain(srv *server.Server) error {
	wg := &sync.WaitGroup{}
	ctx, cancel := initSignalHandler()
	defer cancel()

	if err := srv.Start(ctx, wg); err != nil {
		return fmt.Errorf("error starting server: %s", err)
	}

	log.Infof("Startup complete.")
	wg.Wait()
	return nil
}

func runReplay(cfg config.Replay, processor *hook.Processor) error {
	ctx, cancel := initSignalHandler()
	defer cancel()

	replayLog := log.WithField("component", "replay")
	repo, err := repository.New(replayLog, cfg)
	if err != nil {
		return fmt.Errorf("error opening repository: %s", err)
	}

	event, err := repo.PushEvent()
	if err != nil {
		return fmt.Errorf("error reading commits: %s", err)
	}

	result, err := processor.Process(ctx, replayLog, event)
	if err != nil {
		return fmt.Errorf("error processing commits: %s", err)
	}

	replayLog.Infof("Replayed %d commits: %d comments, %d failed", len(event.Commits), result.Comments, len(result.Failed))
	return nil
}

func initSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Debugf("Got signal: %v", sig)
		cancel()
		signal.Reset(syscall.SIGTERM, syscall.SIGINT)
	}()

	return ctx, cancel
}
