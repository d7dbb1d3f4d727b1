package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goran-ethernal/blockfetch/internal/common"
	"github.com/goran-ethernal/blockfetch/internal/config"
	"github.com/goran-ethernal/blockfetch/internal/fetcher"
	"github.com/goran-ethernal/blockfetch/internal/logger"
	"github.com/goran-ethernal/blockfetch/internal/metrics"
	"github.com/goran-ethernal/blockfetch/internal/rpc"
	"github.com/goran-ethernal/blockfetch/internal/types"
	pkgconfig "github.com/goran-ethernal/blockfetch/pkg/config"
)

const version = "1.0.0"

var (
	configPath string

	fromBlock   uint64
	toBlock     uint64
	chunkSize   uint64
	concurrency int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.GetDefaultLogger().Errorf("command failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blockfetch",
	Short: "blockfetch - Batched Ethereum block and log retrieval",
	Long: `blockfetch retrieves ranges or explicit lists of blocks together with
their event logs in single batched JSON-RPC round trips, merging each log
into its owning block.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a half-open block range [from, to) with merged logs",
	Long: `Fetch every block in the half-open range [from, to), each with its full
transaction objects and the logs emitted in it, and print the result as JSON.

Large ranges can be split into chunks fetched concurrently with --chunk-size
and --concurrency. Each chunk is still a single batched round trip.`,
	RunE: runFetch,
}

var fetchBlocksCmd = &cobra.Command{
	Use:   "fetch-blocks <number> [number...]",
	Short: "Fetch an explicit list of blocks with their logs",
	Long: `Fetch the given block numbers, each paired with a logs query scoped to
exactly that block, and print the result as JSON. Block numbers accept
decimal or 0x-prefixed hex.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetchBlocks,
}

var sendRawCmd = &cobra.Command{
	Use:   "send-raw <hex-encoded-tx>",
	Short: "Submit a pre-signed raw transaction",
	Long: `Submit an already signed, RLP-encoded transaction to the node via
eth_sendRawTransaction and print the resulting transaction hash.`,
	Args: cobra.ExactArgs(1),
	RunE: runSendRaw,
}

var blockNumberCmd = &cobra.Command{
	Use:   "block-number",
	Short: "Print the current head block number",
	RunE:  runBlockNumber,
}

var nonceCmd = &cobra.Command{
	Use:   "nonce <address>",
	Short: "Print the transaction count of an account at the configured block tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runNonce,
}

var codeCmd = &cobra.Command{
	Use:   "code <address>",
	Short: "Print the contract code at an address at the configured block tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runCode,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	fetchCmd.Flags().Uint64Var(&fromBlock, "from", 0, "first block of the range (inclusive)")
	fetchCmd.Flags().Uint64Var(&toBlock, "to", 0, "end of the range (exclusive)")
	fetchCmd.Flags().Uint64Var(&chunkSize, "chunk-size", 0, "split the range into chunks of this many blocks (0 = single batch)")
	fetchCmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of chunks fetched in parallel")
	_ = fetchCmd.MarkFlagRequired("from")
	_ = fetchCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(fetchBlocksCmd)
	rootCmd.AddCommand(sendRawCmd)
	rootCmd.AddCommand(blockNumberCmd)
	rootCmd.AddCommand(nonceCmd)
	rootCmd.AddCommand(codeCmd)
}

// setup loads the configuration, connects to the node and starts the metrics
// server when enabled. The returned cleanup function closes everything.
func setup(ctx context.Context) (*pkgconfig.Config, *rpc.Client, func(), error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentClient, cfg.Logging)

	client, err := rpc.NewClient(ctx, cfg.Client.RPCURL, cfg.Client.Retry)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	log.Debugf("Connected to Ethereum node: %s", cfg.Client.RPCURL)

	metrics.ComponentHealthSet(common.ComponentClient, true)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		log.Debugf("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	cleanup := func() {
		if metricsServer != nil {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}
		client.Close()
	}

	return cfg, client, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// callContext derives a per-call context from the configured request timeout.
func callContext(ctx context.Context, cfg *pkgconfig.Config) (context.Context, context.CancelFunc) {
	if cfg.Client.RequestTimeout.Duration > 0 {
		return context.WithTimeout(ctx, cfg.Client.RequestTimeout.Duration)
	}
	return context.WithCancel(ctx)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bf := fetcher.New(client, logger.NewComponentLoggerFromConfig(common.ComponentBlockFetcher, cfg.Logging))

	blocks, err := fetchRange(ctx, cfg, bf, fromBlock, toBlock)
	if err != nil {
		metrics.ErrorsInc(common.ComponentBlockFetcher, "error")
		return describeFetchError(err)
	}

	return printJSON(blocks)
}

// fetchRange fetches [from, to), splitting it into chunks fetched in
// parallel when --chunk-size is set. Chunk results are reassembled in range
// order.
func fetchRange(
	ctx context.Context,
	cfg *pkgconfig.Config,
	bf *fetcher.BlockFetcher,
	from, to uint64,
) ([]types.Block, error) {
	if chunkSize == 0 || to-from <= chunkSize {
		callCtx, cancel := callContext(ctx, cfg)
		defer cancel()
		return bf.GetBlocks(callCtx, from, to)
	}

	type chunk struct {
		from, to uint64
	}

	var chunks []chunk
	for start := from; start < to; start += chunkSize {
		end := start + chunkSize
		if end > to {
			end = to
		}
		chunks = append(chunks, chunk{from: start, to: end})
	}

	results := make([][]types.Block, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ch := range chunks {
		g.Go(func() error {
			callCtx, cancel := callContext(gctx, cfg)
			defer cancel()

			blocks, err := bf.GetBlocks(callCtx, ch.from, ch.to)
			if err != nil {
				return fmt.Errorf("chunk [%d, %d): %w", ch.from, ch.to, err)
			}
			results[i] = blocks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	blocks := make([]types.Block, 0, to-from)
	for _, r := range results {
		blocks = append(blocks, r...)
	}

	return blocks, nil
}

func runFetchBlocks(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	blockNumbers := make([]uint64, 0, len(args))
	for _, arg := range args {
		num, err := common.ParseUint64orHex(&arg)
		if err != nil {
			return fmt.Errorf("invalid block number %q: %w", arg, err)
		}
		blockNumbers = append(blockNumbers, num)
	}

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bf := fetcher.New(client, logger.NewComponentLoggerFromConfig(common.ComponentBlockFetcher, cfg.Logging))

	callCtx, cancelCall := callContext(ctx, cfg)
	defer cancelCall()

	blocks, err := bf.GetBlocksFromArray(callCtx, blockNumbers)
	if err != nil {
		metrics.ErrorsInc(common.ComponentBlockFetcher, "error")
		return describeFetchError(err)
	}

	return printJSON(blocks)
}

func runSendRaw(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rawTx, err := decodeHex(args[0])
	if err != nil {
		return fmt.Errorf("invalid raw transaction: %w", err)
	}

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	callCtx, cancelCall := callContext(ctx, cfg)
	defer cancelCall()

	hash, err := client.SendRawTransaction(callCtx, rawTx)
	if err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}

	fmt.Println(hash.Hex())
	return nil
}

func runBlockNumber(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	callCtx, cancelCall := callContext(ctx, cfg)
	defer cancelCall()

	num, err := client.BlockNumber(callCtx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	fmt.Println(num)
	return nil
}

func runNonce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	addr := gethcommon.HexToAddress(args[0])

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tag, err := types.ParseBlockTag(cfg.Client.BlockTag)
	if err != nil {
		return err
	}

	callCtx, cancelCall := callContext(ctx, cfg)
	defer cancelCall()

	nonce, err := client.GetTransactionCount(callCtx, addr, tag)
	if err != nil {
		return fmt.Errorf("failed to get transaction count: %w", err)
	}

	fmt.Println(nonce)
	return nil
}

func runCode(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	addr := gethcommon.HexToAddress(args[0])

	cfg, client, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tag, err := types.ParseBlockTag(cfg.Client.BlockTag)
	if err != nil {
		return err
	}

	callCtx, cancelCall := callContext(ctx, cfg)
	defer cancelCall()

	code, err := client.GetCode(callCtx, addr, tag)
	if err != nil {
		return fmt.Errorf("failed to get code: %w", err)
	}

	fmt.Println(hexutil.Encode(code))
	return nil
}

// describeFetchError enriches node-side "too many results" failures with the
// block range the node suggests retrying with.
func describeFetchError(err error) error {
	if tooMany, msg := rpc.IsTooManyResultsError(err); tooMany {
		if from, to, ok := rpc.ParseSuggestedBlockRange(msg); ok {
			return fmt.Errorf("%w\nhint: the node suggests retrying with --from %d --to %d, "+
				"or use --chunk-size to split the range", err, from, to+1)
		}
		return fmt.Errorf("%w\nhint: use --chunk-size to split the range into smaller batches", err)
	}
	return err
}

func decodeHex(s string) ([]byte, error) {
	if len(s) < 2 || (s[:2] != "0x" && s[:2] != "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
