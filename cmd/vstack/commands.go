package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vectorstack-ai/go-vectorstackai/internal/useragent"
	"github.com/vectorstack-ai/go-vectorstackai/vectorstackai"
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger hclog.Logger
}

type command func(ctx context.Context, fs *flag.FlagSet, args []string) error

func (a *app) commands() map[string]command {
	return map[string]command{
		"embed":          a.embed,
		"create-index":   a.createIndex,
		"list-indexes":   a.listIndexes,
		"describe":       a.describe,
		"delete-index":   a.deleteIndex,
		"optimize":       a.optimize,
		"upsert":         a.upsert,
		"search":         a.search,
		"delete-vectors": a.deleteVectors,
	}
}

// run returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		printUsage(a.stderr)
		return 2
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		printUsage(a.stdout)
		return 0
	}

	cmd, ok := a.commands()[name]
	if !ok {
		fmt.Fprintf(a.stderr, "unknown command: %s\n\n", name)
		printUsage(a.stderr)
		return 2
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	if err := cmd(ctx, fs, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		a.reportError(name, err)
		return 1
	}
	return 0
}

func (a *app) reportError(name string, err error) {
	var apiErr *vectorstackai.APIError
	if errors.As(err, &apiErr) {
		a.logger.Debug("request failed", "command", name, "kind", apiErr.Kind, "status", apiErr.HTTPStatus,
			"request_id", apiErr.RequestID)
		fmt.Fprintf(a.stderr, "vstack %s: %s: %s\n", name, apiErr.Kind, apiErr.UserMessage())
		return
	}
	fmt.Fprintf(a.stderr, "vstack %s: %v\n", name, err)
}

// connection flags shared by every command
type clientFlags struct {
	apiKey     string
	baseURL    string
	configFile string
	sourceTag  string
	timeout    time.Duration
	maxRetries int
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	cf := &clientFlags{}
	fs.StringVar(&cf.apiKey, "api-key", "", "API key (defaults to "+vectorstackai.EnvApiKey+")")
	fs.StringVar(&cf.baseURL, "base-url", "", "Service base URL (defaults to "+vectorstackai.DefaultBaseURL+")")
	fs.StringVar(&cf.configFile, "config", "", "Optional YAML config file")
	fs.StringVar(&cf.sourceTag, "source-tag", "", "Source tag sent in the User-Agent header")
	fs.DurationVar(&cf.timeout, "timeout", 0, "Per-attempt request timeout")
	fs.IntVar(&cf.maxRetries, "max-retries", 0, "Total attempts for transient failures")
	return cf
}

func (a *app) newClient(cf *clientFlags) (*vectorstackai.Client, error) {
	return vectorstackai.NewClient(vectorstackai.NewClientParams{
		ApiKey:         cf.apiKey,
		BaseURL:        cf.baseURL,
		ConfigFile:     cf.configFile,
		Headers:        map[string]string{"User-Agent": useragent.BuildUserAgentCLI(cf.sourceTag)},
		MaxRetries:     cf.maxRetries,
		RequestTimeout: cf.timeout,
		SourceTag:      cf.sourceTag,
		Logger:         a.logger.Named("client"),
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) embed(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	model := fs.String("model", "", "Embedding model name (required)")
	isQuery := fs.Bool("query", false, "Embed the texts as search queries")
	instruction := fs.String("instruction", "", "Optional instruction for instruction-tuned models")
	languages := fs.String("languages", "", "Optional comma-separated language per text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := &vectorstackai.EmbedRequest{
		Texts:       fs.Args(),
		Model:       *model,
		IsQuery:     *isQuery,
		Instruction: *instruction,
	}
	if *languages != "" {
		req.Languages = splitList(*languages)
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	res, err := client.Embed(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]any{
		"num_embeddings": res.Count,
		"embedding_dims": res.Dim,
		"embeddings":     res.Vectors,
	})
}

func (a *app) createIndex(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	name := fs.String("name", "", "Index name (required)")
	dimension := fs.Int("dimension", 0, "Vector dimension")
	metric := fs.String("metric", "", "cosine or dotproduct")
	features := fs.String("features", "", "dense or hybrid")
	model := fs.String("model", "", "Optional integrated embedding model")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := &vectorstackai.CreateIndexRequest{Name: *name, Dimension: int32(*dimension)}
	if *metric != "" {
		m := vectorstackai.IndexMetric(*metric)
		req.Metric = &m
	}
	if *features != "" {
		f := vectorstackai.FeaturesType(*features)
		req.FeaturesType = &f
	}
	if *model != "" {
		req.EmbeddingModelName = model
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idx, err := client.CreateIndex(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(idx)
}

func (a *app) listIndexes(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idxs, err := client.ListIndexes(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(idxs)
}

func (a *app) describe(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	name := fs.String("name", "", "Index name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idx, err := client.DescribeIndex(ctx, *name)
	if err != nil {
		return err
	}
	return a.printJSON(idx)
}

func (a *app) deleteIndex(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	name := fs.String("name", "", "Index name (required)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	if err := client.DeleteIndex(ctx, *name, a.confirmation(*yes)...); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "index %q deleted\n", *name)
	return nil
}

func (a *app) optimize(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	name := fs.String("name", "", "Index name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	if err := client.OptimizeForLatency(ctx, *name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "index %q is being optimized for latency\n", *name)
	return nil
}

// upsertRecord is one JSON line accepted by the upsert command.
type upsertRecord struct {
	Id            string         `json:"id"`
	Vector        []float32      `json:"vector,omitempty"`
	Text          string         `json:"text,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SparseIndices []uint32       `json:"sparse_indices,omitempty"`
	SparseValues  []float32      `json:"sparse_values,omitempty"`
}

func (a *app) upsert(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	index := fs.String("index", "", "Index name (required)")
	file := fs.String("file", "", "JSON lines file of records (defaults to stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := a.stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		in = f
	}
	records, err := readUpsertRecords(in)
	if err != nil {
		return err
	}
	req, err := buildUpsertRequest(records)
	if err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idxConn, err := client.Index(ctx, *index)
	if err != nil {
		return err
	}
	res, err := idxConn.UpsertVectors(ctx, req)
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func readUpsertRecords(r io.Reader) ([]upsertRecord, error) {
	var records []upsertRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec upsertRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("no records to upsert")
	}
	return records, nil
}

func buildUpsertRequest(records []upsertRecord) (*vectorstackai.UpsertRequest, error) {
	req := &vectorstackai.UpsertRequest{}
	hasMetadata, hasSparse := false, false
	for _, rec := range records {
		hasMetadata = hasMetadata || rec.Metadata != nil
		hasSparse = hasSparse || rec.SparseIndices != nil || rec.SparseValues != nil
	}

	for i, rec := range records {
		req.Ids = append(req.Ids, rec.Id)
		if rec.Vector != nil {
			req.Vectors = append(req.Vectors, rec.Vector)
		}
		if rec.Text != "" {
			req.Texts = append(req.Texts, rec.Text)
		}
		if hasMetadata {
			var meta *vectorstackai.Metadata
			if rec.Metadata != nil {
				var err error
				if meta, err = vectorstackai.NewMetadata(rec.Metadata); err != nil {
					return nil, fmt.Errorf("record %d metadata: %w", i, err)
				}
			}
			req.Metadata = append(req.Metadata, meta)
		}
		if hasSparse {
			req.Sparse = append(req.Sparse, &vectorstackai.SparseValues{Indices: rec.SparseIndices, Values: rec.SparseValues})
		}
	}
	return req, nil
}

// searchHitOutput is the printed form of a hit; Metadata is flattened for encoding/json.
type searchHitOutput struct {
	Id         string         `json:"id"`
	Similarity float32        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (a *app) search(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	index := fs.String("index", "", "Index name (required)")
	vector := fs.String("vector", "", "Comma-separated query vector")
	text := fs.String("text", "", "Raw text query for indexes with an integrated model")
	topK := fs.Int("top-k", vectorstackai.DefaultTopK, "Number of hits to return")
	withMetadata := fs.Bool("metadata", false, "Return metadata with each hit")
	sparseIndices := fs.String("sparse-indices", "", "Comma-separated sparse query indices (hybrid indexes)")
	sparseValues := fs.String("sparse-values", "", "Comma-separated sparse query values (hybrid indexes)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := &vectorstackai.SearchRequest{QueryText: *text, TopK: *topK, ReturnMetadata: *withMetadata}
	var err error
	if *vector != "" {
		if req.QueryVector, err = parseFloats(*vector); err != nil {
			return fmt.Errorf("-vector: %w", err)
		}
	}
	if *sparseIndices != "" || *sparseValues != "" {
		req.SparseQuery = &vectorstackai.SparseValues{}
		if req.SparseQuery.Indices, err = parseUints(*sparseIndices); err != nil {
			return fmt.Errorf("-sparse-indices: %w", err)
		}
		if req.SparseQuery.Values, err = parseFloats(*sparseValues); err != nil {
			return fmt.Errorf("-sparse-values: %w", err)
		}
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idxConn, err := client.Index(ctx, *index)
	if err != nil {
		return err
	}
	hits, err := idxConn.Search(ctx, req)
	if err != nil {
		return err
	}

	out := make([]searchHitOutput, len(hits))
	for i, hit := range hits {
		out[i] = searchHitOutput{Id: hit.Id, Similarity: hit.Similarity}
		if hit.Metadata != nil {
			out[i].Metadata = hit.Metadata.AsMap()
		}
	}
	return a.printJSON(out)
}

func (a *app) deleteVectors(ctx context.Context, fs *flag.FlagSet, args []string) error {
	cf := registerClientFlags(fs)
	index := fs.String("index", "", "Index name (required)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := a.newClient(cf)
	if err != nil {
		return err
	}
	idxConn, err := client.Index(ctx, *index)
	if err != nil {
		return err
	}
	ids := fs.Args()
	if err := idxConn.DeleteVectors(ctx, ids, a.confirmation(*yes)...); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %d vectors from index %q\n", len(ids), *index)
	return nil
}

func (a *app) confirmation(skip bool) []vectorstackai.DeleteOption {
	if skip {
		return nil
	}
	return []vectorstackai.DeleteOption{vectorstackai.WithConfirmation(a.prompt)}
}

// prompt asks on stderr and reads a y/yes answer from stdin.
func (a *app) prompt(question string) (bool, error) {
	fmt.Fprintf(a.stderr, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloats(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := splitList(s)
	values := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, err
		}
		values[i] = float32(v)
	}
	return values, nil
}

func parseUints(s string) ([]uint32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := splitList(s)
	values := make([]uint32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, err
		}
		values[i] = uint32(v)
	}
	return values, nil
}
