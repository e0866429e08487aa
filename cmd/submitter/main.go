// Command submitter is the off-chain settlement submitter for the
// cross-chain fee-manager bridge.
//
// Usage:
//
//	submitter [flags]
//
// Flags:
//
//	--rpc-port     RPC server port (default: 50001)
//	--db-path      Database directory path (default: "db")
//	--debug        Enable the debug RPC namespace (default: false)
//	--start-block  Operator-supplied resumption block
//	--version      Print version and exit
//
// The submitter private key is never accepted as a flag or environment
// variable; it is read once from an interactive, non-echoing prompt.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/term"

	"github.com/Orbiter-Finance/OB-Submitter/internal/archiver"
	"github.com/Orbiter-Finance/OB-Submitter/internal/blocksstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/bus"
	"github.com/Orbiter-Finance/OB-Submitter/internal/chainadapter"
	"github.com/Orbiter-Finance/OB-Submitter/internal/config"
	"github.com/Orbiter-Finance/OB-Submitter/internal/crawler"
	"github.com/Orbiter-Finance/OB-Submitter/internal/index"
	"github.com/Orbiter-Finance/OB-Submitter/internal/ingester"
	"github.com/Orbiter-Finance/OB-Submitter/internal/kvstore"
	"github.com/Orbiter-Finance/OB-Submitter/internal/profitstate"
	"github.com/Orbiter-Finance/OB-Submitter/internal/rpcapi"
	"github.com/Orbiter-Finance/OB-Submitter/internal/smt"
	"github.com/Orbiter-Finance/OB-Submitter/internal/supervisor"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txindex"
	"github.com/Orbiter-Finance/OB-Submitter/internal/txsource"
	ob "github.com/Orbiter-Finance/OB-Submitter/log"
	"github.com/Orbiter-Finance/OB-Submitter/rpc"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

const shutdownTimeout = 5 * time.Second

type cliFlags struct {
	RPCPort    uint64
	DBPath     string
	Debug      bool
	StartBlock uint64
}

func defaultFlags() cliFlags {
	return cliFlags{RPCPort: 50001, DBPath: "db"}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments and a key-prompt source so it can be tested in isolation.
func run(args []string, keyPromptSrc *os.File) int {
	flags, exit, code := parseFlags(args)
	if exit {
		return code
	}

	log := ob.Default()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	privateKey, err := promptPrivateKey(keyPromptSrc)
	if err != nil {
		log.Error("failed to read submitter private key", "error", err)
		return 1
	}

	client, err := dialFirstReachable(cfg.MainnetRPCURLs)
	if err != nil {
		log.Error("failed to dial mainnet RPC", "error", err)
		return 1
	}
	defer client.Close()

	signer, err := bind.NewKeyedTransactorWithChainID(privateKey, new(big.Int).SetUint64(cfg.MainnetChainID))
	if err != nil {
		log.Error("failed to build transactor", "error", err)
		return 1
	}

	chain := chainadapter.New(client, common.HexToAddress(cfg.FeeManagerContractAddress), signer)

	store, err := kvstore.OpenBolt(flags.DBPath)
	if err != nil {
		log.Error("failed to open database", "error", err, "path", flags.DBPath)
		return 1
	}
	defer store.Close()

	profit := smt.New[profitstate.Data](store, "profit", profitstate.Codec{})
	blocks := smt.New[blocksstate.Data](store, "blocks", blocksstate.Codec{})
	idx := index.New(store)
	txIdx := txindex.New(store)
	txSource := txsource.New(cfg.TxsSourceURL, cfg.SupportChainsSourceURL, http.DefaultClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start, err := archiver.DiscoverStart(ctx, chain, blocks, cfg.CommonDelaySeconds, flags.StartBlock)
	if err != nil {
		log.Error("start-block discovery failed", "error", err)
		return 1
	}
	log.Info("resuming from discovered start block", "block", start)

	b := bus.New()
	api := rpcapi.New(profit, blocks, idx, txIdx, flags.Debug)
	server := rpc.NewServer(api)
	addr := fmt.Sprintf(":%d", flags.RPCPort)

	sup := supervisor.New(func(format string, a ...interface{}) { log.Warn(fmt.Sprintf(format, a...)) })

	headTailer := supervisor.NewHeadTailer(chain, b, func(format string, a ...interface{}) {
		log.Module("headtailer").Warn(fmt.Sprintf(format, a...))
	})
	ing := &ingesterTask{
		ingester: ingester.New(chain, idx, cfg.CommonDelaySeconds, start),
		bus:      b,
		log:      log.Module("ingester"),
	}
	craw := &crawlerTask{
		crawler: crawler.New(idx, txIdx, chain, txSource, crawler.Delays{
			Common: cfg.CommonDelaySeconds * 1000,
			OP:     cfg.OPDelaySeconds * 1000,
			ZK:     cfg.ZKDelaySeconds * 1000,
		}, start),
		log: log.Module("crawler"),
	}
	arch := &archiverTask{
		archiver: archiver.New(profit, blocks, idx, txIdx, chain, cfg.CommonDelaySeconds, start),
		bus:      b,
		log:      log.Module("archiver"),
	}
	rpcSrv := &rpcTask{serve: func(ctx context.Context) error { return serveHTTP(ctx, addr, server.Handler()) }}

	if err := sup.Register("head-tailer", headTailer, 0); err != nil {
		log.Error("failed to register head-tailer", "error", err)
		return 1
	}
	if err := sup.Register("ingester", ing, 1, "head-tailer"); err != nil {
		log.Error("failed to register ingester", "error", err)
		return 1
	}
	if err := sup.Register("crawler", craw, 1); err != nil {
		log.Error("failed to register crawler", "error", err)
		return 1
	}
	if err := sup.Register("archiver", arch, 2, "head-tailer"); err != nil {
		log.Error("failed to register archiver", "error", err)
		return 1
	}
	if err := sup.Register("rpc", rpcSrv, 0); err != nil {
		log.Error("failed to register rpc server", "error", err)
		return 1
	}

	log.Info("submitter starting", "version", version, "commit", commit, "rpcAddr", addr, "debug", flags.Debug)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sup.Run(ctx); err != nil {
		log.Error("supervisor stopped with error", "error", err)
		return 1
	}
	log.Info("shutdown complete")
	return 0
}

func parseFlags(args []string) (cliFlags, bool, int) {
	flags := defaultFlags()
	fs := newFlagSet(&flags)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return flags, true, 2
	}
	if *showVersion {
		fmt.Printf("submitter %s (commit %s)\n", version, commit)
		return flags, true, 0
	}
	return flags, false, 0
}

func newFlagSet(flags *cliFlags) *flagSet {
	fs := newCustomFlagSet("submitter")
	fs.Uint64Var(&flags.RPCPort, "rpc-port", flags.RPCPort, "RPC server port")
	fs.StringVar(&flags.DBPath, "db-path", flags.DBPath, "database directory path")
	fs.BoolVar(&flags.Debug, "debug", flags.Debug, "enable the debug RPC namespace")
	fs.Uint64Var(&flags.StartBlock, "start-block", flags.StartBlock, "operator-supplied resumption block")
	return fs
}

// promptPrivateKey reads the submitter private key from src without
// echoing it, accepting hex with or without a leading "0x".
func promptPrivateKey(src *os.File) (*ecdsa.PrivateKey, error) {
	fmt.Fprint(os.Stderr, "submitter private key: ")
	raw, err := term.ReadPassword(int(src.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	hexKey := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// dialFirstReachable dials each URL in order, returning the first client
// that connects successfully.
func dialFirstReachable(urls []string) (*ethclient.Client, error) {
	var lastErr error
	for _, u := range urls {
		client, err := ethclient.Dial(u)
		if err == nil {
			return client, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no reachable mainnet RPC endpoint: %w", lastErr)
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
