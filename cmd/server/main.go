package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-service/auth"
	"github.com/jrsteele09/go-session-service/internal/config"
	"github.com/jrsteele09/go-session-service/internal/db"
	"github.com/jrsteele09/go-session-service/internal/db/migrate"
	"github.com/jrsteele09/go-session-service/server"
	"github.com/jrsteele09/go-session-service/sessions/memstore"
	"github.com/jrsteele09/go-session-service/sessions/pgstore"
	"github.com/jrsteele09/go-session-service/sessions/redistore"
	"github.com/jrsteele09/go-session-service/token"
	"github.com/jrsteele09/go-session-service/users"
	"github.com/jrsteele09/go-session-service/users/pgrepo"
	"github.com/jrsteele09/go-session-service/users/repofake"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	keyPair, err := token.LoadOrCreateKeyPair(c.GetDataFolder())
	if err != nil {
		return errors.Wrap(err, "[run] token.LoadOrCreateKeyPair")
	}
	tokenManager := token.NewManager(token.NewKeyPairSigner(keyPair), c.GetIssuer())

	repos, cleanup, err := buildRepos(c)
	if err != nil {
		return errors.Wrap(err, "[run] buildRepos")
	}
	defer cleanup()

	srv, err := server.New(c, repos, tokenManager)
	if err != nil {
		return errors.Wrap(err, "[run] server.New")
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildRepos wires the session store and user directory named by the
// configuration. The memory store keeps everything in process and is the
// default for development.
func buildRepos(c config.Config) (auth.Repos, func(), error) {
	noop := func() {}

	switch c.GetSessionStore() {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return auth.Repos{}, noop, errors.Wrap(err, "[buildRepos] redis ping")
		}
		// User accounts still live in Postgres when sessions are in Redis.
		userRepo, conn, err := postgresUsers(c)
		if err != nil {
			_ = client.Close()
			return auth.Repos{}, noop, err
		}
		cleanup := func() {
			_ = client.Close()
			_ = conn.Close()
		}
		return auth.Repos{
			Users:    userRepo,
			Sessions: redistore.New(client, c.GetMaxSessionsCount()),
		}, cleanup, nil

	case "postgres":
		userRepo, conn, err := postgresUsers(c)
		if err != nil {
			return auth.Repos{}, noop, err
		}
		return auth.Repos{
			Users:    userRepo,
			Sessions: pgstore.New(conn, c.GetMaxSessionsCount()),
		}, func() { _ = conn.Close() }, nil

	case "memory":
		return auth.Repos{
			Users:    repofake.New(),
			Sessions: memstore.New(c.GetMaxSessionsCount()),
		}, noop, nil

	default:
		return auth.Repos{}, noop, errors.Errorf("[buildRepos] unknown session store %q", c.GetSessionStore())
	}
}

func postgresUsers(c config.Config) (users.UserRepo, *sql.DB, error) {
	dsn := c.GetDatabaseURL()
	if err := migrate.Up(dsn); err != nil {
		return nil, nil, errors.Wrap(err, "[postgresUsers] migrate.Up")
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[postgresUsers] db.Open")
	}
	return pgrepo.New(conn), conn, nil
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
