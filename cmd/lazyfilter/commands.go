package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rebeliceyang/lazyfilter/internal/catalog"
	"github.com/rebeliceyang/lazyfilter/internal/export"
	"github.com/rebeliceyang/lazyfilter/internal/filter"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rebeliceyang/lazyfilter/internal/savedfilters"
	"github.com/rebeliceyang/lazyfilter/internal/session"
	"github.com/rebeliceyang/lazyfilter/internal/storage"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

func newOperatorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "operators [type]",
		Short: "List the operators valid for a data type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types := models.AllDataTypes
			if len(args) == 1 {
				dt := models.DataType(args[0])
				if !dt.Valid() {
					return fmt.Errorf("unknown data type: %s", args[0])
				}
				types = []models.DataType{dt}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tOPERATOR\tLABEL\tDEFAULT")
			for _, dt := range types {
				def := filter.DefaultOperator(dt)
				for _, op := range filter.OperatorsFor(dt) {
					mark := ""
					if op.Operator == def {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", dt, op.Operator, op.Label, mark)
				}
			}
			return w.Flush()
		},
	}
}

func newInferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "infer <attribute> [sample]",
		Short: "Show the data type inferred for an attribute",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt := filter.InferDataType(args[0])
			if len(args) == 2 {
				var sample interface{}
				if err := json.Unmarshal([]byte(args[1]), &sample); err != nil {
					sample = args[1]
				}
				dt = filter.InferDataTypeFromValue(args[0], sample)
			}
			fmt.Printf("%s\t%s\t%s\n", args[0], dt, filter.DefaultOperator(dt))
			return nil
		},
	}
}

func newComposeCmd(a *app) *cobra.Command {
	var groupsFile, term string
	var asSQL bool

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose filter groups and a search term into a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := readGroups(groupsFile)
			if err != nil {
				return err
			}

			query := a.builder().Compose(groups, term)
			if asSQL {
				where, params, err := filter.NewSQLBuilder("attributes").BuildWhere(query)
				if err != nil {
					return err
				}
				fmt.Println(where)
				return printJSON(params)
			}
			return printJSON(query)
		},
	}

	cmd.Flags().StringVar(&groupsFile, "groups", "", "JSON file holding an array of filter groups")
	cmd.Flags().StringVar(&term, "search", "", "quick-search term")
	cmd.Flags().BoolVar(&asSQL, "sql", false, "print a PostgreSQL WHERE clause instead")

	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Show the quick-search predicate for a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(a.builder().BuildSearchPredicate(args[0]))
		},
	}
}

func newSavedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage saved filters",
	}

	cmd.AddCommand(
		newSavedListCmd(a),
		newSavedSaveCmd(a),
		newSavedDeleteCmd(a),
		newSavedExportCmd(a),
		newSavedImportCmd(a),
	)

	return cmd
}

func newSavedListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd.Context(), nil, func(ctrl *session.Controller) error {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tGROUPS\tCONDITIONS\tCREATED\tSHARED")
				for _, f := range ctrl.LoadSavedFilters(cmd.Context()) {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%t\n",
						f.ID, f.Name, len(f.FilterGroups), f.FilterGroups.ConditionCount(),
						f.CreatedAt.Format("2006-01-02 15:04"), f.IsShared)
				}
				return w.Flush()
			})
		},
	}
}

func newSavedSaveCmd(a *app) *cobra.Command {
	var groupsFile, description string
	var shared bool

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save filter groups under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := readGroups(groupsFile)
			if err != nil {
				return err
			}

			return a.withController(cmd.Context(), nil, func(ctrl *session.Controller) error {
				if err := ctrl.ReplaceGroups(groups); err != nil {
					return err
				}
				saved, err := ctrl.SaveFilter(cmd.Context(), args[0], description, shared)
				if err != nil {
					return err
				}
				fmt.Println(saved.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&groupsFile, "groups", "", "JSON file holding an array of filter groups (required)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&shared, "shared", false, "mark the filter as shared")
	_ = cmd.MarkFlagRequired("groups")

	return cmd
}

func newSavedDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd.Context(), nil, func(ctrl *session.Controller) error {
				return ctrl.DeleteFilter(cmd.Context(), args[0])
			})
		},
	}
}

func newSavedExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Export saved filters (.json, .csv or .yaml; stdout when no path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd.Context(), nil, func(ctrl *session.Controller) error {
				filters := ctrl.LoadSavedFilters(cmd.Context())
				if len(args) == 0 {
					blob, err := ctrl.ExportFilters()
					if err != nil {
						return err
					}
					fmt.Println(blob)
					return nil
				}
				if err := export.ExportToFile(filters, args[0]); err != nil {
					return err
				}
				a.logger.Info().Int("count", len(filters)).Str("path", args[0]).Msg("exported saved filters")
				return nil
			})
		},
	}
}

func newSavedImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import saved filters from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withController(cmd.Context(), nil, func(ctrl *session.Controller) error {
				imported, err := ctrl.ImportFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("imported %d saved filters\n", len(imported))
				return nil
			})
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var groupsFile, savedID, term string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a composed query against the configured catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source, err := catalog.Open(ctx, a.cfg.Catalog)
			if err != nil {
				return err
			}
			defer func() { _ = source.Close(context.Background()) }()

			fetcher := catalog.NewFetcher(source, a.cfg.Query.DefaultLimit, a.logger, nil)

			return a.withController(ctx, fetcher, func(ctrl *session.Controller) error {
				saved, err := a.filterToRun(ctx, ctrl, groupsFile, savedID)
				if err != nil {
					return err
				}

				ctrl.SetSearchTerm(term)
				if err := ctrl.LoadFilter(ctx, saved); err != nil {
					return err
				}
				return printJSON(fetcher.Last())
			})
		},
	}

	cmd.Flags().StringVar(&groupsFile, "groups", "", "JSON file holding an array of filter groups")
	cmd.Flags().StringVar(&savedID, "saved", "", "ID of a saved filter to run")
	cmd.Flags().StringVar(&term, "search", "", "quick-search term")
	cmd.MarkFlagsMutuallyExclusive("groups", "saved")

	return cmd
}

func newAttributesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attributes",
		Short: "Sample the catalog and list product attributes with their inferred types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source, err := catalog.Open(ctx, a.cfg.Catalog)
			if err != nil {
				return err
			}
			defer func() { _ = source.Close(context.Background()) }()

			attrs, err := catalog.SampleAttributes(ctx, source, a.cfg.Query.DefaultLimit)
			if err != nil {
				return err
			}

			return a.withController(ctx, nil, func(ctrl *session.Controller) error {
				ctrl.SetAttributes(catalog.AttributeNames(attrs))
				cond, err := ctrl.AddCondition(session.DefaultGroupID)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ATTRIBUTE\tTYPE\tOPERATORS\tSAMPLE")
				for _, attr := range attrs {
					var ops []string
					for _, opt := range filter.OperatorsFor(attr.DataType) {
						ops = append(ops, string(opt.Operator))
					}
					fmt.Fprintf(w, "%s%s\t%s\t%s\t%v\n",
						filter.AttributePrefix, attr.Name, attr.DataType, strings.Join(ops, ","), attr.Sample)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				if cond.Attribute != "" {
					fmt.Printf("\nnew conditions start with %s %s (%s)\n", cond.Attribute, cond.Operator, cond.DataType)
				}
				return nil
			})
		},
	}
}

func (a *app) filterToRun(ctx context.Context, ctrl *session.Controller, groupsFile, savedID string) (models.SavedFilter, error) {
	if savedID != "" {
		for _, f := range ctrl.LoadSavedFilters(ctx) {
			if f.ID == savedID {
				return f, nil
			}
		}
		return models.SavedFilter{}, fmt.Errorf("%w: %s", savedfilters.ErrFilterNotFound, savedID)
	}

	groups, err := readGroups(groupsFile)
	if err != nil {
		return models.SavedFilter{}, err
	}
	return models.SavedFilter{FilterGroups: groups}, nil
}

func (a *app) builder() *filter.Builder {
	return filter.NewBuilder(filter.WithSearchFields(a.cfg.Search.Fields...))
}

// withController opens the saved-filter storage, runs fn with a controller
// publishing to publisher, and closes everything afterwards
func (a *app) withController(ctx context.Context, publisher session.Publisher, fn func(*session.Controller) error) error {
	kv, err := storage.Open(a.cfg.Storage.Options())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = kv.Close() }()

	store := savedfilters.NewStore(kv, a.logger,
		savedfilters.WithKey(a.cfg.Storage.Key),
		savedfilters.WithMetrics(a.metrics),
	)

	if publisher == nil {
		publisher = session.PublisherFunc(func(context.Context, bson.M) error { return nil })
	}

	ctrl := session.NewController(publisher, store, a.logger,
		session.WithBuilder(a.builder()),
		session.WithMetrics(a.metrics),
		session.WithDebouncer(session.NewDebouncer(a.cfg.Session.Debounce(), nil)),
	)
	defer ctrl.Close()

	ctrl.LoadSavedFilters(ctx)
	return fn(ctrl)
}

// readGroups loads a JSON array of filter groups; an empty path yields none
func readGroups(path string) (models.FilterSet, error) {
	if path == "" {
		return models.FilterSet{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var groups models.FilterSet
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse groups file: %w", err)
	}

	for _, g := range groups {
		for _, c := range g.Conditions {
			if err := filter.ValidateCondition(c); err != nil {
				return nil, fmt.Errorf("group %q condition %q: %w", g.Name, strings.TrimSpace(c.Attribute), err)
			}
		}
	}
	return groups, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
