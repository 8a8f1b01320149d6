package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"medhelper/internal/adapter/gateway"
	"medhelper/internal/domain"
	"medhelper/internal/infra/config"
	"medhelper/internal/infra/logger"
	"medhelper/internal/protocol/correlation"
	"medhelper/pkg/result"
)

type callOptions struct {
	addr    string
	token   string
	timeout time.Duration
	command string
	payload string
}

func parseCallArgs(args []string, cfg *config.Config) (callOptions, error) {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := callOptions{}
	fs.StringVar(&opts.addr, "addr", cfg.Gateway.Addr, "gateway address or ws:// URL")
	fs.StringVar(&opts.token, "token", cfg.Gateway.Token, "gateway token")
	fs.DurationVar(&opts.timeout, "timeout", cfg.Bridge.RequestTimeout, "response timeout")
	fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch fs.NArg() {
	case 1:
		opts.payload = "{}"
	case 2:
		opts.payload = fs.Arg(1)
	default:
		return opts, fmt.Errorf("usage: medhelper call [-addr host:port] [-timeout d] <command> [json]")
	}
	opts.command = fs.Arg(0)
	if opts.timeout <= 0 {
		return opts, fmt.Errorf("-timeout must be > 0")
	}
	return opts, nil
}

// configFlag finds -config before the full flag set is built, so the other
// flag defaults can come from the file.
func configFlag(args []string) string {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", defaultConfigPath(), "")
	fs.String("addr", "", "")
	fs.String("token", "", "")
	fs.Duration("timeout", 0, "")
	_ = fs.Parse(args)
	return *path
}

func runCall(args []string) error {
	cfg, err := config.Load(configFlag(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	opts, err := parseCallArgs(args, cfg)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(config.LoggerConfig{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout+5*time.Second)
	defer cancel()

	client, err := gateway.Dial(ctx, opts.addr, opts.token, log, correlation.WithDefaultTimeout(opts.timeout))
	if err != nil {
		return err
	}
	defer client.Close()

	resp := correlation.Call[json.RawMessage](ctx, client.Manager(), opts.command, opts.payload, opts.timeout)
	return printResponse(os.Stdout, resp)
}

// printResponse writes a successful payload to w, or returns the failure
// with its public message and code.
func printResponse(w io.Writer, resp result.Result[json.RawMessage, *domain.DomainError]) error {
	return result.Match(resp,
		func(payload json.RawMessage) error {
			_, err := fmt.Fprintln(w, string(payload))
			return err
		},
		func(e *domain.DomainError) error {
			return fmt.Errorf("%s (%s)", domain.PublicMessage(e), e.Code())
		})
}
