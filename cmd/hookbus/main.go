package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookbus/internal/auth"
	"github.com/mattjoyce/hookbus/internal/config"
	"github.com/mattjoyce/hookbus/internal/events"
	"github.com/mattjoyce/hookbus/internal/log"
	"github.com/mattjoyce/hookbus/internal/server"
	"github.com/mattjoyce/hookbus/internal/telemetry"
	"github.com/mattjoyce/hookbus/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "sign":
		os.Exit(runSign(args))
	case "send":
		os.Exit(runSend(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("hookbus version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`hookbus - Signed webhook receiver with a publish/subscribe event bus

Usage:
  hookbus <command> [flags]

Commands:
  serve             Start the webhook receiver in foreground
  sign [FILE|-]     Print the signature header value for a body
  send [FILE|-]     Post a signed test delivery to a running receiver
  config lock       Record the config file hash in .checksums
  config check      Validate configuration and integrity
  version           Show version information
  help              Show this help message

Use 'hookbus <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "lock":
		return runConfigLock(args[1:])
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n\n", args[0])
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: hookbus config <action> [--config PATH]

Actions:
  lock     Hash the config file and write .checksums beside it
  check    Load and validate the config, including its checksum
`)
}

// resolveConfigPath returns path, or a discovered config when path is empty.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	discovered, err := config.Discover()
	if err != nil {
		return "", fmt.Errorf("failed to discover config: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return exitCodeForParse(err)
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hookbus starting", "version", version, "config", path, "name", cfg.Service.Name)

	if cfg.Service.Tracing {
		shutdownTracer, err := telemetry.InitTracer(cfg.Service.Name, os.Stdout, logger)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	hookConfig, err := webhook.FromGlobalConfig(&cfg.Webhook)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}

	bus := events.NewBus(log.WithComponent("events"), cfg.Webhook.QueueSize)
	defer bus.Close()
	bus.On(events.Wildcard, func(ctx context.Context, ev events.Event) {
		logger.Debug("event delivered", "type", ev.Type, "source", ev.Source, "event_id", ev.ID)
	})

	hook, err := webhook.New(hookConfig, bus, log.WithComponent("webhook"))
	if err != nil {
		logger.Error("failed to create webhook handler", "error", err)
		return 1
	}

	var hub *events.Hub
	if cfg.Stream.Enabled {
		hub = events.NewHub(cfg.Stream.Buffer)
	}

	srv := server.New(server.Config{
		Listen:          cfg.Service.Listen,
		ReadTimeout:     cfg.Service.ReadTimeout,
		WriteTimeout:    cfg.Service.WriteTimeout,
		ShutdownTimeout: cfg.Service.ShutdownTimeout,
		Tracing:         cfg.Service.Tracing,
		Tokens:          streamTokens(cfg.Stream.Tokens),
	}, hook, bus, hub, log.WithComponent("server"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		return 1
	}

	logger.Info("hookbus stopped")
	return 0
}

func streamTokens(tokens []config.TokenConfig) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", "", "Shared webhook secret")
	algorithm := fs.String("algorithm", "sha1", "Signature algorithm (sha1|sha256|blake3)")
	if err := fs.Parse(args); err != nil {
		return exitCodeForParse(err)
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: --secret is required")
		return 1
	}
	sign, err := webhook.SignerFor(*algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	body, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println(webhook.ComputeSignature([]byte(*secret), body, sign))
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	target := fs.String("url", "http://127.0.0.1:8080/webhook", "Receiver URL")
	event := fs.String("event", "", "Event type sent in the event header")
	secret := fs.String("secret", "", "Shared webhook secret (unsigned when empty)")
	algorithm := fs.String("algorithm", "sha1", "Signature algorithm (sha1|sha256|blake3)")
	form := fs.Bool("form", false, "Send as application/x-www-form-urlencoded payload field")
	deliveryHeader := fs.String("delivery-header", webhook.DefaultDeliveryHeader, "Header carrying the delivery id")
	eventHeader := fs.String("event-header", webhook.DefaultEventHeader, "Header carrying the event type")
	signatureHeader := fs.String("signature-header", webhook.DefaultSignatureHeader, "Header carrying the signature")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return exitCodeForParse(err)
	}

	if *event == "" {
		fmt.Fprintln(os.Stderr, "Error: --event is required")
		return 1
	}
	if *deliveryHeader == "" || *eventHeader == "" || *signatureHeader == "" {
		fmt.Fprintln(os.Stderr, "Error: header names must not be empty")
		return 1
	}
	sign, err := webhook.SignerFor(*algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	body, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	contentType := "application/json"
	if *form {
		body = []byte(url.Values{"payload": {string(body)}}.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *target, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(*deliveryHeader, uuid.NewString())
	req.Header.Set(*eventHeader, *event)
	if *secret != "" {
		req.Header.Set(*signatureHeader, webhook.ComputeSignature([]byte(*secret), body, sign))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading response: %v\n", err)
		return 1
	}

	fmt.Printf("%s\n%s\n", resp.Status, strings.TrimSpace(string(respBody)))
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return exitCodeForParse(err)
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	manifest, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for name, hash := range manifest.Hashes {
		fmt.Printf("HASH %s: %s\n", name, hash)
	}
	fmt.Printf("Wrote %s\n", config.ChecksumFile)
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return exitCodeForParse(err)
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	if _, err := webhook.FromGlobalConfig(&cfg.Webhook); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	fmt.Println("Configuration valid")
	fmt.Printf("  listen:    %s\n", cfg.Service.Listen)
	fmt.Printf("  path:      %s\n", cfg.Webhook.Path)
	fmt.Printf("  algorithm: %s\n", cfg.Webhook.Algorithm)
	fmt.Printf("  signed:    %t\n", cfg.Webhook.Secret != "")
	fmt.Printf("  stream:    %t (%d tokens)\n", cfg.Stream.Enabled, len(cfg.Stream.Tokens))
	return 0
}

// readInput reads name, or stdin when name is empty or "-".
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func exitCodeForParse(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 1
}
