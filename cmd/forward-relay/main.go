// Package main is the entry point for the forwarding relay Lambda function.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/shineum/forward-relay/internal/awsconf"
	"github.com/shineum/forward-relay/internal/config"
	"github.com/shineum/forward-relay/internal/forwarder"
	"github.com/shineum/forward-relay/internal/intake"
	"github.com/shineum/forward-relay/internal/metrics"
	"github.com/shineum/forward-relay/internal/provider"
	"github.com/shineum/forward-relay/internal/provider/graph"
	"github.com/shineum/forward-relay/internal/provider/ses"
	"github.com/shineum/forward-relay/internal/provider/smtp"
	"github.com/shineum/forward-relay/internal/provider/stdout"
	relaytls "github.com/shineum/forward-relay/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	eventPath := flag.String("event", "", "process a saved SES event JSON file once instead of starting the Lambda runtime")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	// A missing variable stops the process before any message is touched.
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{Region: cfg.AWS.Region})
	if err != nil {
		slog.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}

	store, err := selectStore(cfg, awsCfg)
	if err != nil {
		slog.Error("failed to create intake store", "error", err)
		os.Exit(1)
	}

	// Select email delivery provider
	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to create relay provider", "provider", cfg.Provider, "error", err)
		os.Exit(1)
	}

	fwd, err := forwarder.New(forwarder.Options{
		Store:            store,
		Prefix:           cfg.Intake.Prefix,
		Provider:         prov,
		ConfigurationSet: cfg.SES.ConfigurationSet,
		Forward:          cfg.RewriteConfig(),
		Metrics:          selectMetrics(cfg, awsCfg, prov.Name()),
	})
	if err != nil {
		slog.Error("failed to create forwarder", "error", err)
		os.Exit(1)
	}

	slog.Info("starting forward-relay",
		"intake_backend", cfg.Intake.Backend,
		"bucket", cfg.Intake.Bucket,
		"prefix", cfg.Intake.Prefix,
		"provider", prov.Name(),
		"configuration_set", cfg.SES.ConfigurationSet,
		"metrics_enabled", cfg.Metrics.Namespace != "",
	)

	if *eventPath != "" {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			sig := <-sigCh
			slog.Info("received signal, cancelling", "signal", sig)
			cancel()
		}()

		if err := replayEvent(ctx, fwd, *eventPath); err != nil {
			slog.Error("failed to process event file", "path", *eventPath, "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(fwd.HandleSESEvent)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectStore builds the intake store for the configured backend.
func selectStore(cfg *config.Config, awsCfg aws.Config) (intake.Store, error) {
	switch cfg.Intake.Backend {
	case "local":
		slog.Info("using local intake store", "path", cfg.Intake.Bucket)
		store, err := intake.NewLocalStore(cfg.Intake.Bucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		slog.Info("using S3 intake store",
			"bucket", cfg.Intake.Bucket,
			"endpoint", cfg.Intake.Endpoint,
		)
		return intake.NewS3StoreFromConfig(awsCfg, cfg.Intake.Bucket, cfg.Intake.Endpoint), nil
	}
}

// selectProvider chooses the email delivery backend based on configuration.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case "ses":
		sesCfg, err := awsconf.Load(ctx, awsconf.Options{
			Region:          cfg.SESRegion(),
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using AWS SES provider",
			"region", sesCfg.Region,
			"max_retries", cfg.SES.MaxRetries,
		)
		return ses.New(sesCfg, ses.SESProviderConfig{MaxRetries: cfg.SES.MaxRetries}), nil

	case "smtp":
		host, _, err := net.SplitHostPort(cfg.SMTP.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_RELAY_HOST %q: %w", cfg.SMTP.Host, err)
		}
		tlsConfig, err := relaytls.ClientConfig(relaytls.ClientOptions{
			ServerName:         host,
			CAFile:             cfg.SMTP.CAFile,
			CertFile:           cfg.SMTP.CertFile,
			KeyFile:            cfg.SMTP.KeyFile,
			InsecureSkipVerify: cfg.SMTP.SkipVerify,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using SMTP relay provider",
			"host", cfg.SMTP.Host,
			"tls", cfg.SMTP.TLS,
			"auth_enabled", cfg.SMTPAuthEnabled(),
		)
		p, err := smtp.New(smtp.SMTPProviderConfig{
			Host:      cfg.SMTP.Host,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			TLSMode:   cfg.SMTP.TLS,
			TLSConfig: tlsConfig,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case "graph":
		if cfg.Graph.Sender != cfg.Forward.AsEmail {
			slog.Warn("GRAPH_SENDER differs from FORWARD_AS_EMAIL, Graph may reject the From header",
				"sender", cfg.Graph.Sender,
				"forward_as", cfg.Forward.AsEmail,
			)
		}
		slog.Info("using Microsoft Graph provider",
			"sender", cfg.Graph.Sender,
		)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// selectMetrics returns a CloudWatch collector when a namespace is set.
func selectMetrics(cfg *config.Config, awsCfg aws.Config, providerName string) metrics.Collector {
	if cfg.Metrics.Namespace == "" {
		return metrics.Nop{}
	}
	slog.Info("publishing CloudWatch metrics", "namespace", cfg.Metrics.Namespace)
	return metrics.NewCloudWatchCollector(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Metrics.Namespace,
		map[string]string{"Provider": providerName},
	)
}

// replayEvent runs the handler once against an SES event stored on disk.
func replayEvent(ctx context.Context, fwd *forwarder.Forwarder, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read event file: %w", err)
	}

	var event events.SimpleEmailEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to parse event file: %w", err)
	}

	_, err = fwd.HandleSESEvent(ctx, event)
	return err
}
