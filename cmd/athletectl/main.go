package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"dualstore/internal/app/bootstrap"
	"dualstore/internal/domain/record"
	"dualstore/internal/platform/config"
	applog "dualstore/internal/platform/log"
)

// 退出码
const (
	ExitOK        = 0
	ExitError     = 1
	ExitUsage     = 2
	ExitConfig    = 3
	ExitBackend   = 4
	ExitDuplicate = 5
	ExitPartial   = 6
)

const usage = `Usage: athletectl <command> [options]

Commands:
  insert <file.jsonl>   Insert athlete records (one JSON object per line) into both stores
  search                Substring search against one store
  update                Partially update matching records in both stores
  delete                Delete matching records from both stores
  count                 Count exact matches in both stores
  drop                  Remove every record from both stores

Configuration is read from the environment (.env supported) and APP_CONFIG_FILE.
Run 'athletectl <command> --help' for command options.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(ExitUsage)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(os.Stdout, usage)
		return
	}
	parse, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n%s", cmd, usage)
		os.Exit(ExitUsage)
	}

	// 参数错误在连接存储之前报出
	act, err := parse(args)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(ExitOK)
	}
	if err != nil {
		exit(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}
	applog.Init(applog.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
		Component: "athletectl",
	})

	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitBackend)
	}

	err = act(ctx, rt.Coordinator, os.Stdout)
	rt.Close(ctx)
	applog.Sync()
	exit(err)
}

func exit(err error) {
	if err == nil {
		os.Exit(ExitOK)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage), errors.Is(err, record.ErrInvalidArgument):
		return ExitUsage
	case errors.Is(err, record.ErrPartialWrite):
		return ExitPartial
	case errors.Is(err, record.ErrDuplicateIdentifier):
		return ExitDuplicate
	case errors.Is(err, record.ErrBackendUnavailable):
		return ExitBackend
	default:
		return ExitError
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
