package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/xperimental/githook/internal/config"
	"github.com/xperimental/githook/internal/data"
	"github.com/xperimental/githook/internal/hook"
)

const processedMessage = "Push event processed. Thanks!"

// PushProcessor handles decoded push events.
type PushProcessor interface {
	Process(ctx context.Context, log logrus.FieldLogger, event *data.PushEvent) (*hook.Result, error)
}

type Server struct {
	log       logrus.FieldLogger
	cfg       config.Server
	processor PushProcessor
	server    *http.Server
}

func New(log logrus.FieldLogger, cfg config.Server, processor PushProcessor) (*Server, error) {
	if cfg.ListenAddress == "" {
		return nil, errors.New("listenAddress can not be empty")
	}

	if cfg.ShutdownTimeout == 0 {
		return nil, errors.New("shutdownTimeout can not be zero")
	}

	srv := &Server{
		log:       log,
		cfg:       cfg,
		processor: processor,
		server:    &http.Server{},
	}
	srv.server.Handler = srv.routes()

	return srv, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/hook", s.pushHandler()).Methods(http.MethodPost)
	r.Handle("/push_event", s.pushHandler()).Methods(http.MethodPost)
	r.Handle("/", s.pingHandler()).Methods(http.MethodGet)
	return r
}

func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("error creating listener: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		s.log.Infof("Listening on %s ...", s.cfg.ListenAddress)
		err := s.server.Serve(l)
		if err != http.ErrServerClosed {
			s.log.Errorf("Error in HTTP server: %s", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()

		s.log.Debug("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.log.Errorf("Error shutting down server: %s", err)
		}
	}()

	return nil
}

func (s *Server) pingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ping")
	})
}

func (s *Server) pushHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithField("delivery", deliveryID(r))

		event, err := decodeEvent(r, s.cfg.Secret)
		switch {
		case errors.Is(err, errUnauthorized):
			log.Warnf("Rejected delivery: %s", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		case err != nil:
			log.Errorf("Can not decode push event: %s", err)
			http.Error(w, fmt.Sprintf("Can not decode push event: %s", err), http.StatusInternalServerError)
			return
		case event == nil:
			log.Debugf("Ignoring %s event", eventType(r))
			writeText(w, http.StatusOK, "Event ignored.")
			return
		}

		result, err := s.processor.Process(r.Context(), log, event)
		if err != nil {
			log.Errorf("Error processing push event: %s", err)
			http.Error(w, fmt.Sprintf("Error processing push event: %s", err), http.StatusInternalServerError)
			return
		}

		log.Infof("Processed %d commits on %s: %d comments, %d failed", len(event.Commits), event.Repository.Name, result.Comments, len(result.Failed))
		writeText(w, http.StatusOK, processedMessage)
	})
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}
