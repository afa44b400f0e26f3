package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/docstore/pkg/collection"
	"github.com/nimburion/docstore/pkg/cursor"
	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/health"
	"github.com/nimburion/docstore/pkg/projection"
	"github.com/nimburion/docstore/pkg/query"
	"github.com/nimburion/docstore/pkg/store"
)

type opener func(cmd *cobra.Command) (*session, error)

// joinSpec is the parsed form of --join collection:local:foreign[:as].
type joinSpec struct {
	Collection   string
	LocalField   string
	ForeignField string
	As           string
}

func parseJoinSpec(raw string) (joinSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return joinSpec{}, fmt.Errorf("invalid join %q: want collection:local:foreign[:as]", raw)
	}
	for _, p := range parts[:3] {
		if strings.TrimSpace(p) == "" {
			return joinSpec{}, fmt.Errorf("invalid join %q: empty component", raw)
		}
	}
	js := joinSpec{Collection: parts[0], LocalField: parts[1], ForeignField: parts[2]}
	if len(parts) == 4 {
		js.As = parts[3]
	}
	return js, nil
}

// loadCollection restores name from its snapshot. A missing snapshot yields
// an empty collection.
func loadCollection(cmd *cobra.Command, s *session, name string) (*collection.Collection, error) {
	c, err := s.db.Load(cmd.Context(), name)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return s.db.Collection(name)
	}
	return nil, fmt.Errorf("load %s: %w", name, err)
}

func decodeRecords(r io.Reader) ([]document.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]document.Record, len(raw))
	for i, m := range raw {
		records[i] = document.NormalizeRecord(m)
	}
	return records, nil
}

func newImportCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "import <collection> <file.json>",
		Short: "Insert the records of a JSON array file into a collection",
		Long:  "Insert the records of a JSON array file into a collection. Use - to read from stdin.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			name, path := args[0], args[1]

			var in io.Reader = cmd.InOrStdin()
			if path != "-" {
				f, ferr := os.Open(path)
				if ferr != nil {
					return fmt.Errorf("open %s: %w", path, ferr)
				}
				defer f.Close()
				in = f
			}
			records, err := decodeRecords(in)
			if err != nil {
				return err
			}

			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(cmd.Context()); cerr != nil && err == nil {
					err = cerr
				}
			}()

			c, err := loadCollection(cmd, s, name)
			if err != nil {
				return err
			}
			inserted, err := c.Insert(cmd.Context(), records...)
			if err != nil {
				return err
			}
			if err := s.db.Save(cmd.Context(), name); err != nil {
				return fmt.Errorf("save %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", len(inserted), name)
			return nil
		},
	}
}

type queryFlags struct {
	filter  string
	project string
	skip    int
	limit   int
	reverse bool
	joins   []string
	output  string
	count   bool
}

func newQueryCommand(open opener) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query <collection>",
		Short: "Run a filter against a stored collection and print the matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if f.output != "json" && f.output != "yaml" {
				return fmt.Errorf("invalid output %q: want json or yaml", f.output)
			}
			q := query.Query{}
			if f.filter != "" {
				if q, err = query.ParseJSON([]byte(f.filter)); err != nil {
					return fmt.Errorf("parse filter: %w", err)
				}
			}
			var spec projection.Spec
			if f.project != "" {
				if spec, err = parseProjection(f.project); err != nil {
					return err
				}
			}
			joins := make([]joinSpec, 0, len(f.joins))
			for _, raw := range f.joins {
				js, jerr := parseJoinSpec(raw)
				if jerr != nil {
					return jerr
				}
				joins = append(joins, js)
			}

			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(cmd.Context()); cerr != nil && err == nil {
					err = cerr
				}
			}()

			c, err := loadCollection(cmd, s, args[0])
			if err != nil {
				return err
			}
			cur := c.Find(q).Skip(f.skip).Limit(f.limit).Reverse(f.reverse)
			for _, js := range joins {
				foreign, ferr := loadCollection(cmd, s, js.Collection)
				if ferr != nil {
					return ferr
				}
				cur = cur.Join(cursor.Join{
					Cursor:       foreign.Find(query.Query{}),
					LocalField:   js.LocalField,
					ForeignField: js.ForeignField,
					As:           js.As,
				})
			}
			if !spec.IsEmpty() {
				cur = cur.Project(spec)
			}

			if f.count {
				n, cerr := cur.Count(cmd.Context())
				if cerr != nil {
					return cerr
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}
			records, err := cur.All(cmd.Context())
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), f.output, records)
		},
	}
	cmd.Flags().StringVar(&f.filter, "filter", "", "JSON filter document")
	cmd.Flags().StringVar(&f.project, "project", "", "JSON projection document, e.g. {\"name\":1,\"_id\":0}")
	cmd.Flags().IntVar(&f.skip, "skip", 0, "number of matches to skip")
	cmd.Flags().IntVar(&f.limit, "limit", cursor.Unlimited, "maximum number of matches, negative for all")
	cmd.Flags().BoolVar(&f.reverse, "reverse", false, "scan from the newest record")
	cmd.Flags().StringArrayVar(&f.joins, "join", nil, "join collection:local:foreign[:as], repeatable")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&f.count, "count", false, "print the number of matches only")
	return cmd
}

func parseProjection(raw string) (projection.Spec, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return projection.Spec{}, fmt.Errorf("parse projection: %w", err)
	}
	spec, err := projection.Parse(document.NormalizeRecord(m))
	if err != nil {
		return projection.Spec{}, fmt.Errorf("parse projection: %w", err)
	}
	return spec, nil
}

func writeRecords(w io.Writer, format string, records []document.Record) error {
	if records == nil {
		records = []document.Record{}
	}
	if format == "yaml" {
		data, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshal records: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func newHealthCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the snapshot store and worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(cmd.Context()); cerr != nil && err == nil {
					err = cerr
				}
			}()

			res := s.db.Health(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Status == health.StatusUnhealthy {
				return fmt.Errorf("docstore is %s", res.Status)
			}
			return nil
		},
	}
}
