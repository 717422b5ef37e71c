package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"dualstore/internal/domain/record"
)

var errUsage = errors.New("usage error")

// Service 命令行依赖的协调器能力
type Service interface {
	Insert(ctx context.Context, docs []record.Document) (*record.DualResult, error)
	Update(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.DualResult, error)
	Delete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.DualResult, error)
	Drop(ctx context.Context) (*record.DualResult, error)
	Search(ctx context.Context, filter record.FilterSpec, store record.Store) (*record.Result, error)
	Count(ctx context.Context, filter record.FilterSpec) (*record.Counts, error)
}

// action 参数解析完成后、连接存储之后执行的动作
type action func(ctx context.Context, svc Service, out io.Writer) error

var commands = map[string]func(args []string) (action, error){
	"insert": parseInsert,
	"search": parseSearch,
	"update": parseUpdate,
	"delete": parseDelete,
	"count":  parseCount,
	"drop":   parseDrop,
}

func newFlagSet(name, text string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
	return fs
}

func parseInsert(args []string) (action, error) {
	fs := newFlagSet("insert", `Usage: athletectl insert <file.jsonl> [options]

Description:
  Insert athlete records into the document store and the search engine.
  The file holds one JSON object per line; blank lines are skipped.
  Every record must carry a unique Athlete_ID. Records are sent in
  batches; the first failing batch stops the run.

Examples:
  athletectl insert athletes.jsonl
  athletectl insert athletes.jsonl --batch-size 100

Options:
`)
	batchSize := fs.Int("batch-size", 500, "records per dual insert")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("%w: insert needs exactly one file argument", errUsage)
	}
	if *batchSize <= 0 {
		return nil, fmt.Errorf("%w: --batch-size must be positive", errUsage)
	}
	path := fs.Arg(0)

	return func(ctx context.Context, svc Service, out io.Writer) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		summary, err := insertJSONL(ctx, svc, f, *batchSize)
		if perr := printJSON(out, summary); perr != nil && err == nil {
			err = perr
		}
		return err
	}, nil
}

func parseSearch(args []string) (action, error) {
	fs := newFlagSet("search", `Usage: athletectl search [options]

Description:
  Case-insensitive substring search against one store. Without --query
  every record is returned.

Examples:
  athletectl search
  athletectl search --query '{"Athlete_Name": "aji"}' --store search_engine

Options:
`)
	query := fs.String("query", "", "filter as a JSON object")
	storeName := fs.String("store", "", "document_store | search_engine (default: DEFAULT_STORE)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	filter, err := parseFilter(*query)
	if err != nil {
		return nil, err
	}
	store, err := record.ParseStore(*storeName, "")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, svc Service, out io.Writer) error {
		res, err := svc.Search(ctx, filter, store)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	}, nil
}

func parseUpdate(args []string) (action, error) {
	fs := newFlagSet("update", `Usage: athletectl update --query JSON --update JSON [options]

Description:
  Set fields on records matching --query (exact match) in both stores.

Examples:
  athletectl update --query '{"Athlete_ID": 42}' --update '{"Current_Club": "Eden"}'
  athletectl update --query '{"Current_City": "Jakarta"}' --update '{"Current_Province": "DKI"}' --how many

Options:
`)
	query := fs.String("query", "", "filter as a JSON object (required)")
	updateJSON := fs.String("update", "", "fields to set as a JSON object (required)")
	howName := fs.String("how", "one", "one | many")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *query == "" || *updateJSON == "" {
		return nil, fmt.Errorf("%w: update needs --query and --update", errUsage)
	}
	filter, err := parseFilter(*query)
	if err != nil {
		return nil, err
	}
	var update record.UpdateSpec
	if err := json.Unmarshal([]byte(*updateJSON), &update); err != nil {
		return nil, fmt.Errorf("%w: --update: %w", record.ErrInvalidArgument, err)
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	how, err := record.ParseCardinality(*howName)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, svc Service, out io.Writer) error {
		dual, err := svc.Update(ctx, filter, update, how)
		return report(out, dual, err)
	}, nil
}

func parseDelete(args []string) (action, error) {
	fs := newFlagSet("delete", `Usage: athletectl delete --query JSON [options]

Description:
  Delete records matching --query (exact match) from both stores.

Examples:
  athletectl delete --query '{"Athlete_ID": 42}'
  athletectl delete --query '{"Current_City": "Jakarta"}' --how many

Options:
`)
	query := fs.String("query", "", "filter as a JSON object (required)")
	howName := fs.String("how", "one", "one | many")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *query == "" {
		return nil, fmt.Errorf("%w: delete needs --query", errUsage)
	}
	filter, err := parseFilter(*query)
	if err != nil {
		return nil, err
	}
	how, err := record.ParseCardinality(*howName)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, svc Service, out io.Writer) error {
		dual, err := svc.Delete(ctx, filter, how)
		return report(out, dual, err)
	}, nil
}

func parseCount(args []string) (action, error) {
	fs := newFlagSet("count", `Usage: athletectl count [options]

Description:
  Count records matching --query (exact match) in each store.

Options:
`)
	query := fs.String("query", "", "filter as a JSON object")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	filter, err := parseFilter(*query)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, svc Service, out io.Writer) error {
		counts, err := svc.Count(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(out, counts)
	}, nil
}

func parseDrop(args []string) (action, error) {
	fs := newFlagSet("drop", `Usage: athletectl drop --yes

Description:
  Remove every record from the document store and the search engine.
  The search index is re-created empty.

Options:
`)
	yes := fs.Bool("yes", false, "confirm dropping both stores")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !*yes {
		return nil, fmt.Errorf("%w: refusing to drop without --yes", errUsage)
	}

	return func(ctx context.Context, svc Service, out io.Writer) error {
		dual, err := svc.Drop(ctx)
		return report(out, dual, err)
	}, nil
}

func parseFilter(s string) (record.FilterSpec, error) {
	var filter record.FilterSpec
	if s == "" {
		return filter, nil
	}
	if err := json.Unmarshal([]byte(s), &filter); err != nil {
		return record.FilterSpec{}, fmt.Errorf("%w: --query: %w", record.ErrInvalidArgument, err)
	}
	return filter, nil
}

// report 部分写入时也输出已成功一侧的结果，便于对账
func report(out io.Writer, dual *record.DualResult, err error) error {
	var perr *record.PartialWriteError
	if err != nil && !errors.As(err, &perr) {
		return err
	}
	if dual != nil {
		if perr := printJSON(out, dual); perr != nil && err == nil {
			return perr
		}
	}
	return err
}
