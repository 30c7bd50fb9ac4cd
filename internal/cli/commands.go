package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
)

// ErrVerifyFailed is returned by the verify command when problems were
// found.
var ErrVerifyFailed = errors.New("verification failed")

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "oodb %s\n", Version)
		},
	}
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the committed manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := fromContext(cmd.Context()).openDB(cmd.Context())
			if err != nil {
				return err
			}
			m := db.Engine().Manifest()
			stats := db.Stats()

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Property", "Value"})
			t.AppendRows([]table.Row{
				{"Commit", m.ID},
				{"Created", m.CreatedAt.Format(time.RFC3339)},
				{"Codec", m.Codec},
				{"Degree", m.Degree},
				{"Next OID", uint64(m.NextOID)},
				{"Classes", len(m.Classes)},
				{"Objects", stats.Objects},
				{"Garbage", len(m.Garbage)},
			})
			names := make([]string, 0, len(m.Trees))
			for name := range m.Trees {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				tm := m.Trees[name]
				t.AppendRow(table.Row{"Tree " + name, fmt.Sprintf("root=%d height=%d count=%d", tm.Root, tm.Height, tm.Count)})
			}
			t.Render()
			return nil
		},
	}
}

func newClassesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List the classes of the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := fromContext(ctx).openDB(ctx)
			if err != nil {
				return err
			}
			view, err := db.Engine().Snapshot()
			if err != nil {
				return err
			}
			defer view.Release()

			classes := db.Engine().Catalog().Classes()
			names := make(map[model.ClassID]string, len(classes))
			for _, cc := range classes {
				names[cc.ID] = cc.Name
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Name", "Super", "Attributes", "Instances"})
			for _, cc := range classes {
				var attrs []string
				for _, a := range cc.Attributes {
					if !a.Retired {
						attrs = append(attrs, fmt.Sprintf("%s:%s", a.Name, a.Kind))
					}
				}
				n, err := view.Count(ctx, cc.ID)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{cc.ID, cc.Name, names[cc.Super], strings.Join(attrs, " "), n})
			}
			t.Render()
			return nil
		},
	}
}

// dumpRecord is one line of dump output.
type dumpRecord struct {
	OID     model.OID      `json:"oid"`
	Class   string         `json:"class"`
	Version model.Version  `json:"version"`
	Attrs   map[string]any `json:"attrs"`
}

func newDumpCommand() *cobra.Command {
	var className string
	var limit int

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print committed objects as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := fromContext(ctx).openDB(ctx)
			if err != nil {
				return err
			}
			classes, err := meta.ClassInfoFromCatalog(db.Engine().Catalog().Classes())
			if err != nil {
				return err
			}
			var only *meta.ClassInfo
			if className != "" {
				if only = findClass(classes, className); only == nil {
					return fmt.Errorf("unknown class %q", className)
				}
			}

			view, err := db.Engine().Snapshot()
			if err != nil {
				return err
			}
			defer view.Release()

			var oids func(yield func(model.OID) bool)
			var cursorErr func() error
			if only != nil {
				c := view.Extent(ctx, only.ID, btree.Ascending)
				defer c.Close()
				oids = func(yield func(model.OID) bool) {
					for c.Next() && yield(c.OID()) {
					}
				}
				cursorErr = c.Err
			} else {
				c := view.Objects(ctx, btree.Ascending)
				defer c.Close()
				oids = func(yield func(model.OID) bool) {
					for oid := range c.All() {
						if !yield(oid) {
							return
						}
					}
				}
				cursorErr = c.Err
			}

			enc := gojson.NewEncoder(cmd.OutOrStdout())
			n := 0
			for oid := range oids {
				if limit > 0 && n >= limit {
					break
				}
				rec, err := view.Load(ctx, oid)
				if err != nil {
					return err
				}
				ci, ok := classes[rec.Location.Class]
				if !ok {
					return fmt.Errorf("%s: unknown class %d", oid, rec.Location.Class)
				}
				info, err := meta.Decode(ci, oid, rec.Data, db.Engine().Codec())
				if err != nil {
					return err
				}
				if err := enc.Encode(toDump(info, rec.Location.Version)); err != nil {
					return err
				}
				n++
			}
			return cursorErr()
		},
	}
	cmd.Flags().StringVar(&className, "class", "", "Only dump direct instances of this class")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of objects, 0 for all")
	return cmd
}

// findClass matches a full class name or its unqualified suffix.
func findClass(classes map[model.ClassID]*meta.ClassInfo, name string) *meta.ClassInfo {
	for _, ci := range classes {
		if ci.Name == name || strings.HasSuffix(ci.Name, "."+name) {
			return ci
		}
	}
	return nil
}

func toDump(info *meta.NonNativeObjectInfo, version model.Version) dumpRecord {
	d := dumpRecord{OID: info.OID, Class: info.Class.Name, Version: version, Attrs: make(map[string]any, len(info.Values))}
	for i, a := range info.Class.Attributes() {
		switch v := info.Values[i].(type) {
		case meta.NativeObjectInfo:
			d.Attrs[a.Name] = v.Value
		case meta.ObjectReference:
			d.Attrs[a.Name] = map[string]model.OID{"$ref": v.OID}
		case meta.ReferenceList:
			refs := make([]model.OID, len(v.Refs))
			for j, r := range v.Refs {
				refs[j] = r.OID
			}
			d.Attrs[a.Name] = map[string][]model.OID{"$refs": refs}
		default:
			d.Attrs[a.Name] = nil
		}
	}
	return d
}

func newVerifyCommand() *cobra.Command {
	var records bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the consistency of the committed indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := fromContext(ctx).openDB(ctx)
			if err != nil {
				return err
			}
			report, err := db.Verify(ctx, engine.VerifyOptions{Records: records})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "commit %d: %d objects, %d extent entries\n", report.Commit, report.Objects, report.Extents)
			if report.OK() {
				_, _ = fmt.Fprintln(w, "ok")
				return nil
			}
			for _, p := range report.Problems {
				_, _ = fmt.Fprintf(w, "  - %s\n", p)
			}
			return fmt.Errorf("%w: %d problems", ErrVerifyFailed, len(report.Problems))
		},
	}
	cmd.Flags().BoolVar(&records, "records", false, "Also check that every record blob exists")
	return cmd
}

func newVacuumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Delete blobs no commit reaches anymore",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := fromContext(ctx).openDB(ctx)
			if err != nil {
				return err
			}
			stats, err := db.Vacuum(ctx)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Pages", "Records", "Manifests", "Remaining", "Duration"})
			t.AppendRow(table.Row{stats.PagesDeleted, stats.RecordsDeleted, stats.ManifestsDeleted, stats.Remaining, stats.Duration.Round(time.Millisecond)})
			t.Render()
			return nil
		},
	}
}
