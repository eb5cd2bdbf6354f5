package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/bqgate/internal/auth"
	"github.com/hazyhaar/bqgate/internal/boundary"
	"github.com/hazyhaar/bqgate/internal/bq"
	"github.com/hazyhaar/bqgate/internal/config"
	"github.com/hazyhaar/bqgate/internal/mcp"
	"github.com/hazyhaar/bqgate/pkg/audit"
	"github.com/hazyhaar/bqgate/pkg/chassis"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("bqgate %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bqgate — MCP server for BigQuery

Usage:
  bqgate serve [--config config.toml] [--transport stdio|http] [--addr :8080]
               [--project ID] [--location REGION] [--key-file PATH]
               [--dataset NAME ...]
  bqgate token [--config config.toml] [--subject NAME]
  bqgate version
  bqgate help

Commands:
  serve     Start the MCP server (stdio or HTTP/SSE transport)
  token     Mint a bearer token for the HTTP transport
  version   Print version
  help      Show this help`)
}

// stringList collects repeatable flag values.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	transport := fs.String("transport", "", "transport: stdio or http (overrides config)")
	addr := fs.String("addr", "", "listen address for the http transport (overrides config)")
	project := fs.String("project", "", "BigQuery project (overrides config)")
	location := fs.String("location", "", "BigQuery location (overrides config)")
	keyFile := fs.String("key-file", "", "service account key file (overrides config)")
	var datasets stringList
	fs.Var(&datasets, "dataset", "restrict access to this dataset (repeatable)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *project != "" {
		cfg.BigQuery.Project = *project
	}
	if *location != "" {
		cfg.BigQuery.Location = *location
	}
	if *keyFile != "" {
		cfg.BigQuery.KeyFile = *keyFile
	}
	if len(datasets) > 0 {
		cfg.BigQuery.Datasets = datasets
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// stdout carries the protocol stream in stdio mode; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := bq.NewClient(ctx, bq.Config{
		Project:  cfg.BigQuery.Project,
		Location: cfg.BigQuery.Location,
		KeyFile:  cfg.BigQuery.KeyFile,
		Datasets: cfg.BigQuery.Datasets,
	}, logger)
	if err != nil {
		log.Fatalf("initializing BigQuery client: %v", err)
	}
	defer client.Close()

	bound := boundary.New(cfg.BigQuery.Datasets)
	if bound.Unrestricted() {
		logger.Info("dataset boundary: unrestricted")
	} else {
		logger.Info("dataset boundary: restricted", "datasets", cfg.BigQuery.Datasets)
	}

	var auditLog audit.Logger
	if cfg.Audit.Enabled {
		transportLabel := "stdio"
		if cfg.Server.Transport == config.TransportHTTP {
			transportLabel = "http_sse"
		}
		l, err := audit.Open(cfg.Audit.Path, transportLabel)
		if err != nil {
			log.Fatalf("opening audit log: %v", err)
		}
		defer l.Close()
		auditLog = l
	}

	srv := mcp.NewServer(client, bound, auditLog, version)

	switch cfg.Server.Transport {
	case config.TransportStdio:
		logger.Info("serving MCP over stdio", "project", cfg.BigQuery.Project)
		if err := server.ServeStdio(srv); err != nil && ctx.Err() == nil {
			log.Fatalf("stdio server: %v", err)
		}
	case config.TransportHTTP:
		var authorizer chassis.Authorizer
		if cfg.Auth.Enabled {
			authorizer = auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin, cfg.Auth.APITokenHash)
			logger.Info("bearer auth enabled for messaging endpoints")
		}

		ch, err := chassis.New(chassis.Config{
			Addr:        cfg.Server.Addr,
			ServiceName: "bqgate",
			MCPServer:   srv,
			Authorizer:  authorizer,
			TLS:         cfg.Server.TLS,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("building chassis: %v", err)
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := ch.Stop(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}
		}()

		logger.Info("serving MCP over HTTP/SSE", "addr", cfg.Server.Addr, "project", cfg.BigQuery.Project)
		if err := ch.Start(ctx); err != nil {
			log.Fatalf("chassis: %v", err)
		}
	}
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	subject := fs.String("subject", "mcp-client", "token subject")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("auth.jwt_secret is not configured")
	}

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin, cfg.Auth.APITokenHash)
	token, err := a.GenerateToken(*subject)
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}
	fmt.Println(token)
}
