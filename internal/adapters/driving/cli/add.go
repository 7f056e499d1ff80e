package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch"
	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driving"
	"github.com/yetidevworks/yetisearch/internal/geo"
)

var (
	addCreate  bool
	addReplace bool
)

var addCmd = &cobra.Command{
	Use:   "add [index] [file]",
	Short: "Add documents to an index",
	Long: `Read documents from a JSON file and index them.

The file may hold one document, an array of documents, or one document per
line (JSONL). With no file, or "-", documents are read from stdin.

Each document looks like:
  {"id": "1", "content": {"title": "..."}, "metadata": {}, "geo": "51.5,-0.12"}

geo accepts {"lat":..,"lng":..}, [lat,lng] or "lat,lng".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAdd,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [index] [doc-id...]",
	Short: "Delete documents and their chunks",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDelete,
}

var getCmd = &cobra.Command{
	Use:   "get [index] [doc-id]",
	Short: "Print a stored document",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	addCmd.Flags().BoolVar(&addCreate, "create", false, "create the index if it does not exist")
	addCmd.Flags().BoolVar(&addReplace, "replace", false, "clear the index before adding")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(getCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	docs, err := readDocuments(in)
	if err != nil {
		return err
	}

	ix, err := indexerFor(cmd, e, args[0], addCreate)
	if err != nil {
		return err
	}

	result, err := importDocuments(cmd, ix, docs, addReplace)
	if err != nil {
		return err
	}
	return reportBatch(cmd, args[0], result)
}

// indexerFor returns the index's indexer, creating the index first when
// create is set and it does not exist. Created indices get a spatial table.
func indexerFor(cmd *cobra.Command, e *yetisearch.Engine, index string, create bool) (driving.IndexService, error) {
	ix, err := e.Indexer(cmd.Context(), index)
	if err == nil || !create || !errors.Is(err, domain.ErrIndexNotFound) {
		return ix, err
	}

	opts := domain.IndexOptions{MultiColumn: e.Settings().Search.MultiColumn, Spatial: true}
	if err := e.CreateIndex(cmd.Context(), index, opts); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return e.Indexer(cmd.Context(), index)
}

// importDocuments indexes docs and flushes. With replace the index is
// cleared first.
func importDocuments(
	cmd *cobra.Command,
	ix driving.IndexService,
	docs []domain.Document,
	replace bool,
) (domain.BatchResult, error) {
	ctx := cmd.Context()
	if replace {
		return ix.Rebuild(ctx, docs)
	}

	result, err := ix.IndexBatch(ctx, docs)
	if err != nil {
		return result, err
	}
	if err := ix.Flush(ctx); err != nil {
		return result, fmt.Errorf("failed to flush: %w", err)
	}
	return result, nil
}

func reportBatch(cmd *cobra.Command, index string, result domain.BatchResult) error {
	if jsonOutput {
		out := struct {
			domain.BatchResult
			Errors map[string]string `json:"errors,omitempty"`
		}{BatchResult: result}
		if len(result.Errors) > 0 {
			out.Errors = make(map[string]string, len(result.Errors))
			for id, err := range result.Errors {
				out.Errors[id] = err.Error()
			}
		}
		return printJSON(cmd, out)
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Success, fmt.Sprintf("Indexed %d documents into %s", result.Indexed, index)))
	if result.Failed == 0 {
		return nil
	}

	cmd.Println(s.Render(s.Warning, fmt.Sprintf("%d documents failed:", result.Failed)))
	ids := make([]string, 0, len(result.Errors))
	for id := range result.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cmd.Printf("  %s: %v\n", id, result.Errors[id])
	}
	return nil
}

// documentInput is the JSON shape accepted by add and watch.
type documentInput struct {
	ID        string            `json:"id"`
	Content   map[string]any    `json:"content"`
	Metadata  map[string]any    `json:"metadata"`
	Language  string            `json:"language"`
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Geo       json.RawMessage   `json:"geo"`
	GeoBounds *domain.GeoBounds `json:"geo_bounds"`
}

func (in *documentInput) document() (domain.Document, error) {
	doc := domain.Document{
		ID:        in.ID,
		Content:   in.Content,
		Metadata:  in.Metadata,
		Language:  in.Language,
		Type:      in.Type,
		Timestamp: in.Timestamp,
		GeoBounds: in.GeoBounds,
	}
	if len(in.Geo) > 0 && !bytes.Equal(in.Geo, []byte("null")) {
		doc.Geo = geo.ParsePoint(in.Geo)
		if doc.Geo == nil {
			return doc, fmt.Errorf("document %q: unrecognised geo %s: %w", in.ID, in.Geo, domain.ErrInvalidGeo)
		}
	}
	return doc, nil
}

// readDocuments decodes a JSON array, a single object or JSONL.
func readDocuments(r io.Reader) ([]domain.Document, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var inputs []documentInput
	dec := json.NewDecoder(br)
	if first == '[' {
		if err := dec.Decode(&inputs); err != nil {
			return nil, fmt.Errorf("failed to parse documents: %w", err)
		}
	} else {
		for {
			var in documentInput
			err := dec.Decode(&in)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse document %d: %w", len(inputs)+1, err)
			}
			inputs = append(inputs, in)
		}
	}

	docs := make([]domain.Document, 0, len(inputs))
	for i := range inputs {
		doc, err := inputs[i].document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	ix, err := e.Indexer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, id := range args[1:] {
		if err := ix.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
	}
	cmd.Printf("Deleted %d documents from %s\n", len(args)-1, args[0])
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	e, err := getEngine(cmd)
	if err != nil {
		return err
	}

	doc, err := e.Get(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return printJSON(cmd, doc)
}
