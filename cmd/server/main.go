package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devlink-mcp-server/internal/config"
	"devlink-mcp-server/internal/mangle"
	mcpserver "devlink-mcp-server/internal/mcp"
	"devlink-mcp-server/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "Path to an explicit devlink config file (layered over .devlink/config.yaml)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	envFile := flag.String("env-file", ".env", "Optional KEY=VALUE file loaded before DEVLINK_* overrides")
	initWorkspace := flag.Bool("init", false, "Create .devlink/config.yaml in the current directory and exit")
	noWorkspace := flag.Bool("no-workspace", false, "Ignore .devlink/ workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Use this directory's .devlink/ instead of discovering one")
	flag.Parse()

	if *initWorkspace {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to resolve working directory: %v", err)
		}
		if err := config.InitWorkspace(cwd); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		fmt.Printf("initialized %s/%s\n", config.WorkspaceDirName, config.WorkspaceConfigFile)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	})
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	server, automation, err := buildServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Connection.CloseTimeoutDuration())
		defer cancel()
		automation.Close(closeCtx)
	}()

	if cfg.Connection.AutoConnect {
		connectCtx := ctx
		if total := cfg.Connection.TotalTimeoutDuration(); total > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, total+time.Second)
			defer cancel()
		}
		automation.AutoConnect(connectCtx)
	} else {
		log.Printf("auto-connect disabled; use connect-devtools to attach")
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting devlink MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting devlink MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Printf("server exited with error: %v", startErr)
	}
}

// buildServer wires the fact engine, the optional trace recorder and the
// automation context into an MCP server.
func buildServer(cfg config.Config) (*mcpserver.Server, *mcpserver.Context, error) {
	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize mangle engine: %w", err)
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enable {
		rec, err = recorder.NewRecorder(cfg.Recorder.Dir, cfg.Recorder.MaxFiles)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize trace recorder: %w", err)
		}
	}

	automation := mcpserver.NewContext(cfg, mcpserver.ContextOptions{Engine: engine, Recorder: rec})
	server, err := mcpserver.NewServer(cfg, automation)
	if err != nil {
		automation.Close(context.Background())
		return nil, nil, err
	}
	return server, automation, nil
}
