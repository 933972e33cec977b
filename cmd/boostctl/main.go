// Command boostctl is the operator CLI for category boost queues.
//
// Usage:
//
//	boostctl reconcile [--category=cafes]
//	boostctl queue --category=cafes
//	boostctl retry-refunds [--limit=50]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Umairakbar1/business-backend-sub000/internal/di"
	"github.com/Umairakbar1/business-backend-sub000/internal/domain"
	"github.com/Umairakbar1/business-backend-sub000/internal/dto"
	"github.com/Umairakbar1/business-backend-sub000/pkg/config"
	"github.com/Umairakbar1/business-backend-sub000/pkg/logger"
)

// opener builds the container a command runs against
type opener func(ctx context.Context) (*di.Container, error)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, openFromConfig); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openFromConfig(ctx context.Context) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(&logger.Config{Level: "warn", ServiceName: "boostctl"}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return di.Build(ctx, cfg)
}

func run(ctx context.Context, args []string, out io.Writer, open opener) error {
	if len(args) == 0 {
		return errors.New(usage())
	}

	switch args[0] {
	case "reconcile":
		return cmdReconcile(ctx, args[1:], out, open)
	case "queue":
		return cmdQueue(ctx, args[1:], out, open)
	case "retry-refunds":
		return cmdRetryRefunds(ctx, args[1:], out, open)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage())
		return nil
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage())
	}
}

func usage() string {
	return `boostctl - category boost queue operations

Commands:
  reconcile [--category=c]     Expire elapsed boosts and activate successors
  queue --category=c           Print the ordered queue of a category
  retry-refunds [--limit=n]    Retry refunds the payment gateway rejected

Configuration is read from .env and the environment.`
}

func cmdReconcile(ctx context.Context, args []string, out io.Writer, open opener) error {
	flags := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	category := flags.String("category", "", "reconcile a single category")
	if err := flags.Parse(args); err != nil {
		return err
	}

	c, err := open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if *category == "" {
		return writeJSON(out, c.Reconciler.ReconcileAll(ctx))
	}

	normalized, err := domain.NormalizeCategory(*category)
	if err != nil {
		return err
	}
	result, err := c.Reconciler.ReconcileCategory(ctx, normalized)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", normalized, err)
	}

	summary := &dto.ReconcileResponse{Categories: 1}
	if result.Expired != nil {
		summary.Expired = 1
	}
	if result.Activated != nil {
		summary.Activated = 1
	}
	return writeJSON(out, summary)
}

func cmdQueue(ctx context.Context, args []string, out io.Writer, open opener) error {
	flags := flag.NewFlagSet("queue", flag.ContinueOnError)
	category := flags.String("category", "", "category to print")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *category == "" {
		return errors.New("--category is required")
	}

	c, err := open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	snapshot, err := c.BoostService.GetCategoryQueue(ctx, *category)
	if err != nil {
		return err
	}
	return writeJSON(out, snapshot)
}

func cmdRetryRefunds(ctx context.Context, args []string, out io.Writer, open opener) error {
	flags := flag.NewFlagSet("retry-refunds", flag.ContinueOnError)
	limit := flags.Int("limit", 50, "maximum refunds to retry")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("--limit must be positive")
	}

	c, err := open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	summary, err := c.BoostService.RetryPendingRefunds(ctx, *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, summary)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
