package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"text2phenotype.com/postag/api"
	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/metrics"
	"text2phenotype.com/postag/pipeline"
	"text2phenotype.com/postag/resources"
	"text2phenotype.com/postag/s3client"
	"text2phenotype.com/postag/types"
	"text2phenotype.com/postag/worker"
)

const (
	modelStartMaxRetries = 5
	retryDelay           = 5 * time.Second
)

// exitCode makes the process exit with the code of a wrapped command.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit code %d", int(c))
}

func configFromCmd(cmd *cobra.Command) (Config, error) {
	config, err := readConfig()
	if err != nil {
		return config, &types.ConfigurationError{Op: "read environment", Err: err}
	}
	if dir, _ := cmd.Flags().GetString("profiles-dir"); dir != "" {
		config.ProfilesDir = dir
	}
	if name, _ := cmd.Flags().GetString("profile"); name != "" {
		config.Profile = name
	}
	return config, nil
}

// loadProfile finds the named profile. The built-in default profile is used
// when no profile file is called "default".
func loadProfile(config Config) (types.Configuration, error) {
	cfgs, err := types.LoadConfigurations(config.ProfilesDir)
	if err != nil && config.Profile != types.DefaultConfiguration().Name {
		return types.Configuration{}, err
	}
	if cfg, ok := types.FindConfiguration(cfgs, config.Profile); ok {
		return cfg, nil
	}
	if config.Profile == types.DefaultConfiguration().Name {
		return types.DefaultConfiguration(), nil
	}
	return types.Configuration{}, &types.ConfigurationError{
		Op:  "find profile",
		Err: fmt.Errorf("no profile %q in %s", config.Profile, config.ProfilesDir),
	}
}

func usesS3(cfg types.Configuration) bool {
	for _, r := range []types.Resource{cfg.Resources.Vocab, cfg.Resources.Config, cfg.Resources.Model} {
		if r.Kind == types.ResourceS3 {
			return true
		}
	}
	return false
}

// newResolver returns the resolver for cfg and a function releasing it.
func newResolver(cfg types.Configuration) (resources.Resolver, func(), error) {
	resCfg, err := resources.ReadConfig()
	if err != nil {
		return nil, nil, &types.ConfigurationError{Op: "read resources environment", Err: err}
	}
	hub := resources.NewHub(resCfg.HubCacheDir(), resCfg.HubToken)
	if !usesS3(cfg) {
		return resources.NewResolver(resCfg.CacheDir, nil).WithHub(hub), func() {}, nil
	}
	s3Client, err := s3client.New()
	if err != nil {
		return nil, nil, &types.ConfigurationError{Op: "create s3 client", Err: err}
	}
	return resources.NewResolver(resCfg.CacheDir, s3Client).WithHub(hub), s3Client.Close, nil
}

func loadModel(ctx context.Context, config Config, m *metrics.Metrics) (*pipeline.POSModel, error) {
	cfg, err := loadProfile(config)
	if err != nil {
		return nil, err
	}
	resolver, release, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	defer release()
	return pipeline.New(ctx, cfg, resolver, pipeline.WithMetrics(m))
}

// loadModelWithRetries retries model loading while remote resources or the
// model server come up.
func loadModelWithRetries(ctx context.Context, config Config, m *metrics.Metrics) (*pipeline.POSModel, error) {
	mainLogger := logger.NewLogger("Main")
	var err error
	for retry := 0; retry < modelStartMaxRetries; retry++ {
		var model *pipeline.POSModel
		model, err = loadModel(ctx, config, m)
		if err == nil {
			return model, nil
		}
		var cfgErr *types.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		mainLogger.Err(err).Msgf("Failed to load POS model. Retrying in %s", retryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("could not load POS model after %d retries: %w", modelStartMaxRetries, err)
}

func TagHandler(cmd *cobra.Command, args []string) error {
	config, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	return runTag(cmd.Context(), config, args[0], args[1])
}

func runTag(ctx context.Context, config Config, inPath string, outPath string) error {
	text, err := os.ReadFile(inPath)
	if err != nil {
		return &types.IOError{Path: inPath, Err: err}
	}
	model, err := loadModel(ctx, config, nil)
	if err != nil {
		return err
	}
	defer model.Close()

	result, err := model.TagText(ctx, string(text))
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, []byte(result), 0644); err != nil {
		return &types.IOError{Path: outPath, Err: err}
	}
	return nil
}

func ServeHandler(cmd *cobra.Command, args []string) error {
	config, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		config.RestAPIPort = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	model, err := loadModelWithRetries(ctx, config, m)
	if err != nil {
		return err
	}
	defer model.Close()

	return serve(ctx, config.RestAPIPort, api.NewHandler(model, m))
}

// serve runs the HTTP server until ctx is done.
func serve(ctx context.Context, port string, handler http.Handler) error {
	mainLogger := logger.NewLogger("Main")
	server := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		mainLogger.Info().Msgf("REST API on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mainLogger.Info().Msg("Shutting down REST API")
	return server.Shutdown(shutdownCtx)
}

func WorkHandler(cmd *cobra.Command, args []string) error {
	config, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	mainLogger := logger.NewLogger("Main")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	model, err := loadModelWithRetries(ctx, config, m)
	if err != nil {
		return err
	}
	defer model.Close()

	if config.RestAPIActive {
		go func() {
			if err := serve(ctx, config.RestAPIPort, api.NewHandler(model, m)); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mainLogger.Err(err).Msg("REST API stopped with error")
			}
		}()
	}

	mainLogger.Info().Msg("Start POS tagging worker")
	return runWorkers(ctx, retryDelay, func(ctx context.Context) error {
		rmqWorker, err := worker.New(model, m)
		if err != nil {
			mainLogger.Err(err).Msg("Could not initialize RMQ worker")
			return &fatalWorkerError{err}
		}
		return rmqWorker.StartWorker(ctx)
	})
}

// fatalWorkerError stops runWorkers instead of restarting the worker.
type fatalWorkerError struct {
	err error
}

func (e *fatalWorkerError) Error() string { return e.err.Error() }
func (e *fatalWorkerError) Unwrap() error { return e.err }

// runWorkers restarts start after delay whenever it fails, until ctx is done.
func runWorkers(ctx context.Context, delay time.Duration, start func(ctx context.Context) error) error {
	mainLogger := logger.NewLogger("Main")
	for {
		err := start(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var fatal *fatalWorkerError
		if errors.As(err, &fatal) {
			return fatal.err
		}
		if err != nil {
			mainLogger.Err(err).Msgf("Worker returned with error. Launching new in %s", delay)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func ProfilesHandler(cmd *cobra.Command, args []string) error {
	config, err := configFromCmd(cmd)
	if err != nil {
		return err
	}
	cfgs, err := types.LoadConfigurations(config.ProfilesDir)
	if err != nil {
		return err
	}
	if _, ok := types.FindConfiguration(cfgs, types.DefaultConfiguration().Name); !ok {
		cfgs = append([]types.Configuration{types.DefaultConfiguration()}, cfgs...)
	}
	writeProfiles(cmd.OutOrStdout(), cfgs)
	return nil
}

func writeProfiles(out io.Writer, cfgs []types.Configuration) {
	var data [][]string
	for _, cfg := range cfgs {
		data = append(data, []string{
			cfg.Name,
			cfg.ModelIdentity,
			cfg.Backend,
			string(cfg.Device),
			string(cfg.Aggregation),
			fmt.Sprintf("%016x", cfg.Fingerprint()),
		})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "MODEL", "BACKEND", "DEVICE", "AGGREGATION", "FINGERPRINT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func WrapHandler(cmd *cobra.Command, args []string) error {
	code, err := logger.WrapProcess(cmd.OutOrStdout(), args[0], args[1:]...)
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCode(code)
	}
	return nil
}
