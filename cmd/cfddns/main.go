package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Travis-Britz/cfddns"
	"github.com/cloudflare/cloudflare-go"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

//nolint:gochecknoglobals
var version = "unknown"

type options struct {
	EnvFile string
	IP      string
	DryRun  bool
	Verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := cfddns.NewConsoleLogger(stdout, stderr)

	var opts options
	flags := pflag.NewFlagSet("cfddns", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "path to an optional KEY=value file loaded into the environment")
	flags.StringVar(&opts.IP, "ip", "", "IP address to set instead of looking up the public IP")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "report records that would change without updating them")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var err error
	switch cmd := flags.Arg(0); cmd {
	case "":
		err = runDDNS(ctx, opts, logger)
	case "setup":
		err = runSetup(ctx, opts.EnvFile, promptToken(stdout), verifyToken, logger)
	case "version":
		fmt.Fprintln(stdout, "cfddns "+version)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error(err.Error())
		return 1
	}
	return 0
}

func runDDNS(ctx context.Context, opts options, logger *logrus.Logger) error {
	if err := verifyPermissions(opts.EnvFile); err != nil {
		logger.Warn(err.Error())
	}
	config, err := cfddns.LoadConfig(opts.EnvFile)
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded from environment variables")
	logger.Debugf("zone %s, domain %s, subdomains %q", config.ZoneID, config.Domain, config.Subdomains)

	httpClient := cleanhttp.DefaultPooledClient()
	defer httpClient.CloseIdleConnections()

	clientOptions := []cfddns.Option{
		cfddns.WithLogger(logger),
		cfddns.UsingHTTPClient(httpClient),
	}
	if opts.IP != "" {
		resolver, err := cfddns.FromString(opts.IP)
		if err != nil {
			return fmt.Errorf("--ip: %w", err)
		}
		clientOptions = append(clientOptions, cfddns.UsingResolver(resolver))
	}
	if opts.DryRun {
		clientOptions = append(clientOptions, cfddns.DryRun())
	}
	var metrics *cfddns.Metrics
	if config.PushgatewayURL != "" {
		metrics = cfddns.NewMetrics()
		clientOptions = append(clientOptions, cfddns.WithMetrics(metrics))
	}
	if len(config.ShoutrrrAddresses) > 0 {
		notifier, err := cfddns.NewShoutrrrNotifier(config.ShoutrrrAddresses, logger)
		if err != nil {
			return fmt.Errorf("setting up notifications: %w", err)
		}
		clientOptions = append(clientOptions, cfddns.WithNotifier(notifier))
	}

	client, err := cfddns.New(config, clientOptions...)
	if err != nil {
		return fmt.Errorf("error creating cfddns.Client: %w", err)
	}
	report, err := client.RunDDNS(ctx)
	if err != nil {
		return err
	}
	logger.Debugf("checked %d, updated %d, unchanged %d, missing %d, failed %d",
		report.Checked, report.Updated, report.Unchanged, report.Missing, report.Failed)

	if metrics != nil {
		if err := metrics.Push(ctx, config.PushgatewayURL, config.ZoneID); err != nil {
			logger.Warn(err.Error())
		}
	}
	return nil
}

func runSetup(ctx context.Context, envFile string, readToken func() (string, error),
	verify func(ctx context.Context, token, apiURL string) error, logger *logrus.Logger) error {
	if envFile == "" {
		return errors.New("setup: --env-file cannot be empty")
	}
	logger.Debug("running setup")
	token, err := readToken()
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("setup: token cannot be empty")
	}

	apiURL := os.Getenv(cfddns.EnvAPIURL)
	if apiURL == "" {
		apiURL = cfddns.DefaultCloudflareURL
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("Verifying token...")
	if err := verify(ctx, token, apiURL); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	logger.Info("Token verified successfully")

	if err := writeToken(envFile, token); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	logger.Infof("Token written to %q", envFile)
	return nil
}

func promptToken(stdout io.Writer) func() (string, error) {
	return func() (string, error) {
		fmt.Fprintln(stdout, "Enter Cloudflare API Token:")
		b, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("error reading from stdin: %w", err)
		}
		return string(b), nil
	}
}

func verifyToken(ctx context.Context, token, apiURL string) error {
	api, err := cloudflare.NewWithAPIToken(token, cloudflare.BaseURL(apiURL))
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	return nil
}

// writeToken stores the token in envFile, keeping any other keys already in it.
func writeToken(envFile, token string) error {
	values, err := godotenv.Read(envFile)
	if errors.Is(err, fs.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("error reading %q: %w", envFile, err)
	}
	values[cfddns.EnvAPIToken] = token

	// create with restricted permissions before godotenv writes the secret into it
	f, err := os.OpenFile(envFile, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", envFile, err)
	}
	f.Close()
	if err := godotenv.Write(values, envFile); err != nil {
		return fmt.Errorf("error writing %q: %w", envFile, err)
	}
	return os.Chmod(envFile, 0600)
}

// verifyPermissions reports an env file readable by other users. A missing file is fine.
func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error checking env file permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// 0400 is accepted too: secrets managers often mount files read-only.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
