package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/gossipchain/app/services/node/handlers"
	"github.com/ardanlabs/gossipchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/redisnet"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/wsnet"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/worker"
	"github.com/ardanlabs/gossipchain/foundation/events"
	"github.com/ardanlabs/gossipchain/foundation/logger"
	"github.com/ardanlabs/gossipchain/foundation/nameservice"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:30s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Node struct {
			Name           string        `conf:"default:node1"`
			WalletPath     string        `conf:"default:zblock/wallets/node1.ecdsa"`
			GenesisPath    string        `conf:"default:zblock/genesis.json"`
			ChainPath      string        `conf:"help:json chain to start from as served by /v1/chain"`
			ConflictPolicy string        `conf:"help:overrides the genesis conflict policy: fatal or reject"`
			MiningWorkers  int           `conf:"default:0"`
			InitDelay      time.Duration `conf:"default:1s"`
			Transport      string        `conf:"default:ws,help:gossip transport: ws or redis"`
			AdvertiseHost  string        `conf:"help:private host other nodes dial, defaults to the private host"`
			KnownPeers     []string      `conf:"default:0.0.0.0:9080;0.0.0.0:9180"`
			RedisAddrs     []string      `conf:"default:0.0.0.0:6379"`
			RedisPrefix    string        `conf:"default:gossipchain"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/wallets/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "gossipchain proof of work node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for wallet ids.
	// The names come from the file names in the zblock/wallets folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load wallet name service: %w", err)
	}

	// The wallet id of this node doubles as its peer id on the network.
	wallet, err := database.LoadWallet(cfg.Node.WalletPath)
	if err != nil {
		return fmt.Errorf("unable to load wallet for node: %w", err)
	}
	ns.Add(wallet, cfg.Node.Name)

	// Logging the wallets for documentation in the logs.
	for wallet, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "wallet", wallet)
	}

	// =========================================================================
	// Blockchain Support

	gen, err := loadGenesis(cfg.Node.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}
	if cfg.Node.ConflictPolicy != "" {
		gen.ConflictPolicy = cfg.Node.ConflictPolicy
	}
	log.Infow("startup", "status", "genesis", "difficulty", gen.Difficulty, "searchwidth", gen.SearchWidth, "conflictpolicy", gen.ConflictPolicy)

	blocks, err := loadChain(cfg.Node.ChainPath)
	if err != nil {
		return fmt.Errorf("unable to load starting chain: %w", err)
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New(0)
	ev := logger.EvHandler(log, evts.Send)

	// The state value represents the blockchain node and owns the chain and
	// the pending transactions.
	st, err := state.New(state.Config{
		Wallet:    wallet,
		Genesis:   gen,
		Workers:   cfg.Node.MiningWorkers,
		Blocks:    blocks,
		EvHandler: ev,
	})
	if err != nil {
		return err
	}

	advertise := cfg.Node.AdvertiseHost
	if advertise == "" {
		advertise = cfg.Web.PrivateHost
	}

	// The transport moves gossip messages between the nodes. The websocket
	// transport is served on the private API.
	var (
		transport gossip.Transport
		wsGossip  *wsnet.Transport
	)

	switch cfg.Node.Transport {
	case "ws":
		wsGossip = wsnet.New(wsnet.Config{
			ID:        string(wallet),
			Host:      advertise,
			EvHandler: ev,
		})
		transport = wsGossip

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: cfg.Node.RedisAddrs,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		rt, err := redisnet.New(ctx, redisnet.Config{
			ID:        string(wallet),
			Host:      advertise,
			Client:    client,
			Prefix:    cfg.Node.RedisPrefix,
			EvHandler: ev,
		})
		if err != nil {
			return fmt.Errorf("unable to start redis transport: %w", err)
		}
		transport = rt

	default:
		return fmt.Errorf("unknown transport %q", cfg.Node.Transport)
	}
	defer transport.Close()

	// The worker runs the event loop that owns the state. Every change to
	// the chain happens on its goroutine.
	wrk := worker.Run(worker.Config{
		State:     st,
		Transport: transport,
		InitDelay: cfg.Node.InitDelay,
		EvHandler: ev,
	})
	defer wrk.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, wrk)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Worker:   wrk,
		NS:       ns,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	muxCfg := handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Worker:   wrk,
	}
	if wsGossip != nil {
		muxCfg.Gossip = wsGossip
	}

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(muxCfg)

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Join The Network

	// Dial the known peers. Each connection shares the peers on the other
	// side so the rest of the network is discovered from there.
	if wsGossip != nil {
		go func() {
			for _, host := range cfg.Node.KnownPeers {
				if host == advertise || host == cfg.Web.PrivateHost {
					continue
				}

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := wsGossip.Connect(ctx, host); err != nil {
					log.Infow("startup", "status", "known peer unreachable", "host", host, "ERROR", err)
				}
				cancel()
			}
		}()
	}

	// =========================================================================
	// Shutdown

	var fatalErr error

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case err := <-wrk.Fatal():
		log.Errorw("shutdown", "status", "node has no valid chain", "ERROR", err)
		fatalErr = err

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)
	}

	// Release any web sockets that are currently active.
	log.Infow("shutdown", "status", "shutdown web socket channels")
	evts.Shutdown()

	// Give outstanding requests a deadline for completion.
	ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
	defer cancelPri()

	// Asking listener to shut down and shed load.
	log.Infow("shutdown", "status", "shutdown private API started")
	if err := private.Shutdown(ctx); err != nil {
		private.Close()
		return fmt.Errorf("could not stop private service gracefully: %w", err)
	}

	// Give outstanding requests a deadline for completion.
	ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
	defer cancelPub()

	// Asking listener to shut down and shed load.
	log.Infow("shutdown", "status", "shutdown public API started")
	if err := public.Shutdown(ctx); err != nil {
		public.Close()
		return fmt.Errorf("could not stop public service gracefully: %w", err)
	}

	if fatalErr != nil {
		return fmt.Errorf("unrecoverable chain state: %w", fatalErr)
	}

	return nil
}

// loadGenesis reads the genesis file, falling back to the default settings
// when the file doesn't exist.
func loadGenesis(path string) (genesis.Genesis, error) {
	gen, err := genesis.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return genesis.Default(), nil
	}

	return gen, err
}

// loadChain reads a chain in the form the public API serves it. No path
// means the node starts with an empty chain.
func loadChain(path string) ([]database.Block, error) {
	if path == "" {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chain public.Chain
	if err := json.Unmarshal(content, &chain); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return chain.Blocks, nil
}
