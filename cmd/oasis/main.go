package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/oasis/internal/ai"
	"github.com/gosuda/oasis/internal/chat"
	"github.com/gosuda/oasis/internal/config"
	"github.com/gosuda/oasis/internal/kv"
	"github.com/gosuda/oasis/internal/profile"
	"github.com/gosuda/oasis/internal/web"
)

var rootCmd = &cobra.Command{
	Use:               "oasis",
	Short:             "Personal profile station with a multi-tab chat room",
	PersistentPreRunE: setupLogging,
	RunE:              runOasis,
}

var (
	flagServerURLs []string
	flagPort       int
	flagName       string
	flagCredKey    string

	flagDataPath    string
	flagStore       string
	flagRedisURL    string
	flagBroadcast   string
	flagP2PListen   []string
	flagP2PPeers    []string
	flagChatScope   string
	flagProfile     string
	flagOrigins     []string
	flagJitter      time.Duration
	flagProbability float64

	flagAIURL     string
	flagAIKey     string
	flagAIModel   string
	flagAITimeout time.Duration

	flagLogLevel  string
	flagLogPretty bool
)

func init() {
	cfg := config.Load()

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&flagServerURLs, "server-url", cfg.RelayURLs, "relayserver base URL(s); repeat or comma-separated (from env OASIS_RELAY/RELAY if set)")
	flags.IntVar(&flagPort, "port", cfg.Port, "optional local HTTP port (negative to disable)")
	flags.StringVar(&flagName, "name", cfg.Name, "backend display name")
	flags.StringVar(&flagCredKey, "cred-key", cfg.CredKey, "optional credential key to use for the listener (base64 encoded)")

	flags.StringVar(&flagDataPath, "data-path", cfg.DataPath, "directory for the pebble or sqlite store")
	flags.StringVar(&flagStore, "store", cfg.Store, "profile storage backend: memory, pebble, sqlite or redis")
	flags.StringVar(&flagRedisURL, "redis-url", cfg.RedisURL, "redis URL for the redis store and broadcast backends")
	flags.StringVar(&flagBroadcast, "broadcast", cfg.Broadcast, "chat broadcast backend: local, redis or p2p")
	flags.StringSliceVar(&flagP2PListen, "p2p-listen", []string{cfg.P2PListen}, "libp2p listen multiaddr(s) for the p2p broadcast backend")
	flags.StringSliceVar(&flagP2PPeers, "p2p-peer", cfg.P2PPeers, "peer multiaddr(s) with /p2p/<id> to mesh with")
	flags.StringVar(&flagChatScope, "chat-scope", cfg.ChatScope, "chat room scope: profile (one room per browser) or global")
	flags.StringVar(&flagProfile, "profile", cfg.Profile, "YAML file describing the owner profile")
	flags.StringSliceVar(&flagOrigins, "allowed-origin", cfg.AllowedOrigins, "CORS allowed origin(s)")
	flags.DurationVar(&flagJitter, "online-jitter", cfg.OnlineJitter, "interval for online count drift (0 disables)")
	flags.Float64Var(&flagProbability, "reply-probability", cfg.ReplyProbability, "chance the host answers a message without a greeting")

	flags.StringVar(&flagAIURL, "ai-url", cfg.AIURL, "OpenAI-compatible completion endpoint (empty keeps the assistant offline)")
	flags.StringVar(&flagAIKey, "ai-key", cfg.AIKey, "API key for the completion endpoint")
	flags.StringVar(&flagAIModel, "ai-model", cfg.AIModel, "completion model name")
	flags.DurationVar(&flagAITimeout, "ai-timeout", cfg.AITimeout, "per-reply completion timeout (0 leaves it to the transport)")

	flags.StringVar(&flagLogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.BoolVar(&flagLogPretty, "log-pretty", cfg.LogPretty, "human-readable console logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute oasis command")
	}
}

func setupLogging(*cobra.Command, []string) error {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if flagLogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return nil
}

func runOasis(cmd *cobra.Command, args []string) error {
	// Cancellation context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, err := profile.Load(flagProfile)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if needsRedis() {
		rdb, err = openRedisClient(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	store, err := openStore(ctx, rdb)
	if err != nil {
		log.Warn().Err(err).Str("store", flagStore).Msg("[oasis] open store failed; running in memory only")
		store = kv.NewMemory()
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("[oasis] store close error")
		}
	}()

	hub, err := openHub(ctx, rdb)
	if err != nil {
		return err
	}
	defer hub.Close()

	var completer ai.Completer = ai.Offline{}
	if flagAIURL != "" {
		completer = ai.NewLLMClient(flagAIURL, flagAIKey, flagAIModel, owner.Instruction())
	} else {
		log.Info().Msg("[ai] no completion endpoint configured; replies use fallback text")
	}

	srv := web.NewServer(web.Options{
		Profile:        owner,
		Store:          store,
		Hub:            hub,
		Responder:      ai.NewResponder(completer, flagAITimeout),
		Trigger:        chat.GreetingTrigger(flagProbability, nil),
		ChatScope:      flagChatScope,
		OnlineJitter:   flagJitter,
		AllowedOrigins: flagOrigins,
	})
	handler := srv.Router()

	relays, err := listenRelays(flagServerURLs, flagName, flagCredKey)
	if err != nil {
		return err
	}
	if len(relays.listeners) == 0 && flagPort < 0 {
		return errors.New("nothing to serve: no relay servers via --server-url or RELAY and local --port disabled")
	}

	// Serve over each relay listener
	for i, ln := range relays.listeners {
		idx := i
		go func(ln net.Listener) {
			if err := http.Serve(ln, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", idx).Msg("[oasis] relay http error")
			}
		}(ln)
	}

	// Optional local server on --port
	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", flagPort), Handler: handler, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[oasis] serving locally at http://127.0.0.1:%d", flagPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[oasis] local http stopped")
			}
		}()
	}

	<-ctx.Done()
	relays.close()
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[oasis] http server shutdown error")
		}
	}
	// Hijacked websocket connections are not covered by Shutdown.
	srv.Close()
	log.Info().Msg("[oasis] shutdown complete")
	return nil
}

// splitURLs flattens repeated and comma-separated flag values.
func splitURLs(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, p := range strings.Split(r, ",") {
			if u := strings.TrimSpace(p); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}
