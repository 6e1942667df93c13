package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/pflag"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/config"
	"github.com/talentbridge/go-apiclient/credential"
	"github.com/talentbridge/go-apiclient/retry"
	"github.com/talentbridge/go-apiclient/transport"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) int
}

var commands = map[string]command{
	"login":    {usage: "login --email <email> [--password <password>]", run: runLogin},
	"logout":   {usage: "logout", run: runLogout},
	"get":      {usage: "get <path>", run: runGet},
	"upload":   {usage: "upload [--category cv|photo] <glob>...", run: runUpload},
	"download": {usage: "download <url> <dest>", run: runDownload},
	"serve":    {usage: "serve [--addr :8080] [--account email:password]", run: runServe},
}

type app struct {
	cfg     config.Config
	envRepo env.Repository
	logger  log.Logger
	out     io.Writer
	client  *api.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, env.NewRepository(), log.NewLogger())
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, envRepo env.Repository, logger log.Logger) int {
	flags := pflag.NewFlagSet("apiclient", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(out)
	configPath := flags.String("config", "", "YAML config file")
	envFile := flags.String("env-file", ".env", ".env file to load")
	debug := flags.Bool("debug", false, "enable debug logging")
	flags.Usage = func() { printUsage(out, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if flags.NArg() == 0 {
		printUsage(out, flags)
		return exitUsage
	}
	cmd, ok := commands[flags.Arg(0)]
	if !ok {
		logger.Errorf("Unknown command: %s", flags.Arg(0))
		printUsage(out, flags)
		return exitUsage
	}

	if err := config.LoadDotEnv(envRepo, *envFile); err != nil {
		logger.Warnf("Failed to load %s: %s", *envFile, err)
	}
	cfg, err := config.Load(envRepo, *configPath)
	if err != nil {
		logger.Errorf("Failed to load config: %s", err)
		return exitFailure
	}
	logger.EnableDebugLog(cfg.Debug || *debug)

	a := &app{cfg: cfg, envRepo: envRepo, logger: logger, out: out}
	return cmd.run(ctx, a, flags.Args()[1:])
}

func printUsage(out io.Writer, flags *pflag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "Usage: apiclient [flags] <command> [args]")
	fmt.Fprintln(out, "\nCommands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(out, "\nFlags:")
	fmt.Fprint(out, flags.FlagUsages())
}

// apiClient builds the request facade on first use.
func (a *app) apiClient() (*api.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	store, err := a.credentials()
	if err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithCredentials(store),
		api.WithNavigator(transport.NavigatorFunc(func() {
			a.logger.Warnf("Session expired, run `apiclient login` to sign in again")
		})),
	}
	if a.cfg.Breaker {
		opts = append(opts, api.WithBreaker(retry.NewBreaker(retry.DefaultBreakerConfig(a.cfg.APIURL))))
	}

	client, err := api.New(a.cfg.API(), opts...)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func (a *app) credentials() (credential.Store, error) {
	if a.cfg.CredentialsPath == "" {
		return credential.NewMemoryStore(""), nil
	}
	return credential.NewFileStore(a.cfg.CredentialsPath)
}

// print writes v as indented JSON and returns the exit code for it.
func (a *app) print(v interface{}, success bool) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		a.logger.Errorf("Failed to encode result: %s", err)
		return exitFailure
	}
	fmt.Fprintln(a.out, string(data))
	if !success {
		return exitFailure
	}
	return exitOK
}

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func splitAccount(v string) (string, string, bool) {
	email, password, ok := strings.Cut(v, ":")
	return email, password, ok && email != "" && password != ""
}
