package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jburel/snoopycrimecop/internal/cfg"
	"github.com/jburel/snoopycrimecop/internal/git"
	"github.com/jburel/snoopycrimecop/internal/githubclt"
	"github.com/jburel/snoopycrimecop/internal/logfields"
	"github.com/jburel/snoopycrimecop/internal/merge"
	"github.com/jburel/snoopycrimecop/internal/retry"
)

const appName = "snoopycrimecop"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

// shutdownTimeout is how long a signal handler waits for the running merge
// operation to remove its temporary remotes.
const shutdownTimeout = time.Minute

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

type arguments struct {
	Verbose      *bool
	ConfigFile   *string
	ShowVersion  *bool
	Reset        *bool
	Info         *bool
	Include      *[]string
	Exclude      *[]string
	BuildNumber  *int
	Organization *string

	Base string
}

var args arguments

func defConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("/etc", appName, "config.toml")
	}

	return filepath.Join(dir, appName, "config.toml")
}

// labelFlagUsage returns the usage text of a label list flag.
// Space separated values after the flag are not supported, they are
// interpreted as positional arguments.
func labelFlagUsage(name, desc string) string {
	return fmt.Sprintf(
		"%s,\nlabels are comma separated or the flag is repeated (--%s a,b or --%s a --%s b)",
		desc, name, name, name,
	)
}

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile(),
			"path to the configuration file, the default file is only read if it exists",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		Reset: pflag.Bool(
			"reset",
			false,
			"discard local changes (git reset --hard HEAD) before merging",
		),
		Info: pflag.Bool(
			"info",
			false,
			"only print the pull requests that would be merged",
		),
		Include: pflag.StringSlice(
			"include",
			nil,
			labelFlagUsage("include", "merge pull requests with one of these labels, also from non-members of the organization"),
		),
		Exclude: pflag.StringSlice(
			"exclude",
			nil,
			labelFlagUsage("exclude", "never merge pull requests with one of these labels"),
		),
		BuildNumber: pflag.Int(
			"buildnumber",
			0,
			"push the result to the branch <BASE>/<BUILDNUMBER> of the push remote, nothing is pushed if it is 0",
		),
		Organization: pflag.String(
			"org",
			"",
			"github organization whose public members' pull requests are merged (default: organization from the config file)",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]... BASE\nMerge labelled GitHub pull requests into the local branch, recursively for all submodules.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *args.ShowVersion {
		return
	}

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	args.Base = pflag.Arg(0)
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	config, err := cfg.LoadFile(*args.ConfigFile, pflag.CommandLine.Changed("cfg-file"))
	exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		zapcore.Lock(os.Stderr),
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	// stdout is used for the --info output
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func githubToken(config *cfg.Config) string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}

	return config.GithubAPIToken
}

// repositoryName returns the name of the repository from the origin remote
// url of the repository in dir.
func repositoryName(ctx context.Context, g *git.Runner, dir string) (string, error) {
	url, err := g.OriginURL(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("retrieving url of remote origin failed: %w", err)
	}

	return repositoryNameFromURL(url)
}

// repositoryNameFromURL returns the last path element of url without its
// extension. The host or owner part of url must contain "github".
func repositoryNameFromURL(url string) (string, error) {
	if !strings.Contains(path.Dir(url), "github") {
		return "", fmt.Errorf("remote origin url %q is not a github url", url)
	}

	base := path.Base(url)

	return strings.TrimSuffix(base, path.Ext(base)), nil
}

// pushRefspec returns the refspec the merge result is pushed to.
// If buildNumber is not positive, nothing is pushed and false is returned.
func pushRefspec(base string, buildNumber int) (string, bool) {
	if buildNumber <= 0 {
		return "", false
	}

	return fmt.Sprintf("HEAD:%s/%d", base, buildNumber), true
}

func mergeConfig(config *cfg.Config, clt *githubclt.Client, g *git.Runner, retryer *retry.Retryer) (*merge.Config, error) {
	result := merge.Config{
		GithubClient:        clt,
		Git:                 g,
		Retryer:             retryer,
		TestDirectoriesFile: config.TestDirectoriesFile,
	}

	if config.FilterQuery != "" {
		q, err := merge.ParseFilterQuery(config.FilterQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing filter_query failed: %w", err)
		}

		result.FilterQuery = q
	}

	if config.ForkURLTemplate != "" {
		t, err := merge.ParseForkURLTemplate(config.ForkURLTemplate)
		if err != nil {
			return nil, fmt.Errorf("parsing fork_url_template failed: %w", err)
		}

		result.ForkURLTemplate = t
	}

	return &result, nil
}

func logAuthenticatedUser(ctx context.Context, clt *githubclt.Client) {
	login, err := clt.AuthenticatedUser(ctx)
	if err != nil {
		logger.Warn(
			"retrieving authenticated github user failed",
			logfields.Event("github_authentication_check_failed"),
			zap.Error(err),
		)

		return
	}

	logger.Info("authenticated at github", logfields.Event("github_authenticated"), logfields.Author(login))
}

func run(ctx context.Context, config *cfg.Config) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	gitRunner := git.NewRunner()

	repo, err := repositoryName(ctx, gitRunner, dir)
	if err != nil {
		return err
	}

	token := githubToken(config)
	githubClient := githubclt.New(token)
	if token != "" {
		logAuthenticatedUser(ctx, githubClient)
	}

	retryTimeout, err := config.RetryTimeout()
	if err != nil {
		return err
	}

	retryer := retry.NewRetryer(retryTimeout)
	defer retryer.Stop()

	mergeCfg, err := mergeConfig(config, githubClient, gitRunner, retryer)
	if err != nil {
		return err
	}

	org := *args.Organization
	if org == "" {
		org = config.Organization
	}

	mctx := merge.MergeContext{
		Organization: org,
		Repository:   repo,
		Base:         args.Base,
		Reset:        *args.Reset,
		Include:      *args.Include,
		Exclude:      *args.Exclude,
	}

	logger.Info(
		"starting",
		logfields.Event("merge_started"),
		logfields.RepositoryOwner(org),
		logfields.Repository(repo),
		logfields.BaseBranch(args.Base),
		logfields.Directory(dir),
		zap.Strings("include_labels", mctx.Include),
		zap.Strings("exclude_labels", mctx.Exclude),
		zap.Bool("info_only", *args.Info),
	)

	m, err := merge.New(ctx, mergeCfg, &mctx, dir)
	if err != nil {
		return err
	}

	// failures are logged by Cleanup
	defer func() { _ = m.Cleanup(ctx) }()

	if *args.Info {
		err = m.Info()
	} else {
		err = m.Merge(ctx)
	}
	if err != nil {
		return err
	}

	if err := m.Submodules(ctx, *args.Info); err != nil {
		return err
	}

	if *args.Info {
		return nil
	}

	logger.Info(
		"merging finished",
		logfields.Event("merge_finished"),
		zap.Int("modifications", m.Modifications()),
	)

	refspec, push := pushRefspec(args.Base, *args.BuildNumber)
	if !push {
		return nil
	}

	if err := gitRunner.Push(ctx, dir, config.PushRemote, refspec); err != nil {
		return fmt.Errorf("pushing %s to %s failed: %w", refspec, config.PushRemote, err)
	}

	logger.Info(
		"result pushed",
		logfields.Event("git_push_finished"),
		logfields.Remote(config.PushRemote),
		zap.String("git.refspec", refspec),
	)

	return nil
}

func writeMetrics(path string) {
	if path == "" {
		return
	}

	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		logger.Warn(
			"writing metrics failed",
			logfields.Event("metrics_write_failed"),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func main() {
	defer panicHandler()

	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0)
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Debug(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("organization", config.Organization),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.String("test_directories_file", config.TestDirectoriesFile),
		zap.String("fork_url_template", config.ForkURLTemplate),
		zap.String("push_remote", config.PushRemote),
		zap.String("filter_query", config.FilterQuery),
		zap.String("metrics_textfile", config.MetricsTextfile),
		zap.String("api_retry_timeout", config.APIRetryTimeout),
	)

	ctx, cancelFn := context.WithCancel(context.Background())
	runDone := make(chan struct{})

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		if sig != nil {
			logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
		}

		cancelFn()

		select {
		case <-runDone:
		case <-time.After(shutdownTimeout):
			logger.Warn(
				"merge operation did not terminate in time, temporary remotes might not have been removed",
				logfields.Event("shutdown_timeout_exceeded"),
				zap.Duration("timeout", shutdownTimeout),
			)
		}
	})

	err := run(ctx, config)
	close(runDone)

	writeMetrics(config.MetricsTextfile)

	exitCode := 0
	if err != nil {
		exitCode = 1

		var cmdErr *git.CommandError
		if errors.As(err, &cmdErr) {
			logger.Error("git command failed", logfields.Event("git_command_failed"), zap.Error(err))
		} else {
			logger.Error("merging failed", logfields.Event("merge_failed"), zap.Error(err))
		}
	}

	goodbye.Exit(context.Background(), exitCode)
}
