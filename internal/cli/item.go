package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/curator/internal/model"
	"github.com/ppiankov/curator/internal/registry"
)

func newItemCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect and curate filed items",
		Long: `Inspect and curate items in the registry.

Items are never deleted: retire them in favor of a successor instead.
Relationship kinds: requires, enables, conflicts, alternatives. Conflicts and
alternatives are symmetric and are recorded on both items.`,
	}

	cmd.AddCommand(
		newItemGetCmd(o),
		newItemQueryCmd(o),
		newItemRelateCmd(o, true),
		newItemRelateCmd(o, false),
		newItemDependentsCmd(o),
		newItemRetireCmd(o),
		newItemValidateCmd(o),
		newItemOverrideCmd(o),
		newItemDuplicatesCmd(o),
	)
	return cmd
}

// withRegistry runs fn against the configured registry
func (o *options) withRegistry(cmd *cobra.Command, fn func(ctx context.Context, reg *registry.Registry) error) error {
	a, err := o.newApp(registryOnly)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a.registry)
}

func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func newItemGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one item as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				item, found, err := reg.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return model.Errorf(model.ReasonNotFound, "item %s not found", args[0])
				}
				return o.printJSON(item)
			})
		},
	}
}

func newItemQueryCmd(o *options) *cobra.Command {
	var includeRetired bool
	var limit int

	cmd := &cobra.Command{
		Use:   "query <axis> <value>",
		Short: "List items with a taxonomy value",
		Long: `List items whose taxonomy axis equals value, most recently validated
first. Axes: domain, riskProfile, context, maturity.

Example:
  curator item query domain security
  curator item query riskProfile high --include-retired --limit 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, err := model.ParseAxis(args[0])
			if err != nil {
				return model.Wrap(model.ReasonInvalidInput, err, "query")
			}
			var opts []registry.QueryOption
			if includeRetired {
				opts = append(opts, registry.IncludeRetired())
			}

			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				enc := json.NewEncoder(o.stdout)
				n := 0
				for item, err := range reg.QueryByAxis(ctx, axis, args[1], opts...) {
					if err != nil {
						return err
					}
					item.Evaluation = nil
					if err := enc.Encode(item); err != nil {
						return fmt.Errorf("encode output: %w", err)
					}
					n++
					if limit > 0 && n >= limit {
						break
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeRetired, "include-retired", false, "include retired items")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many items (0 for all)")
	return cmd
}

func newItemRelateCmd(o *options, add bool) *cobra.Command {
	use, short := "relate <from> <kind> <to>", "Add a relationship between two items"
	if !add {
		use, short = "unrelate <from> <kind> <to>", "Remove a relationship between two items"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseRelationKind(args[1])
			if err != nil {
				return model.Wrap(model.ReasonInvalidInput, err, "relationship")
			}
			from, to := args[0], args[2]

			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				if add {
					if err := reg.AddRelationship(ctx, from, to, kind); err != nil {
						return err
					}
					fmt.Fprintf(o.stdout, "%s %s %s\n", from, kind, to)
					return nil
				}
				if err := reg.RemoveRelationship(ctx, from, to, kind); err != nil {
					return err
				}
				fmt.Fprintf(o.stdout, "removed %s %s %s\n", from, kind, to)
				return nil
			})
		},
	}
}

func newItemDependentsCmd(o *options) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "dependents <id>",
		Short: "List items that point at an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := model.ParseRelationKind(kind)
			if err != nil {
				return model.Wrap(model.ReasonInvalidInput, err, "relationship")
			}
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				ids, err := reg.Dependents(ctx, args[0], k)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(o.stdout, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.RelationRequires), "relationship kind")
	return cmd
}

func newItemRetireCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "retire <id> <successor>",
		Short: "Retire an item in favor of a successor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				if err := reg.Retire(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(o.stdout, "retired %s, superseded by %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newItemValidateCmd(o *options) *cobra.Command {
	var by, at string

	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Record a human validation",
		Long: `Record that a reviewer validated an item. An item filed as analysis
pending validation is promoted to practice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if at != "" {
				t, err := parseDate(at)
				if err != nil {
					return err
				}
				when = t
			}
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				item, err := reg.RecordValidation(ctx, args[0], by, when)
				if err != nil {
					return err
				}
				fmt.Fprintf(o.stdout, "validated %s by %s (tier %s)\n", item.ID, item.ValidatedBy, item.Tier)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "reviewer name")
	cmd.Flags().StringVar(&at, "at", "", "validation time (YYYY-MM-DD or RFC 3339, default now)")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newItemOverrideCmd(o *options) *cobra.Command {
	var validatedBy string

	cmd := &cobra.Command{
		Use:   "override <id> <tier>",
		Short: "Set an item's tier explicitly",
		Long: `Set the tier of an item, including downgrades. Moving an item to
practice needs an existing validation or --validated-by.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := model.ParseTier(args[1])
			if err != nil {
				return model.Wrap(model.ReasonInvalidInput, err, "override")
			}
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				item, err := reg.OverrideTier(ctx, args[0], tier, validatedBy)
				if err != nil {
					return err
				}
				fmt.Fprintf(o.stdout, "%s is now %s\n", item.ID, item.Tier)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&validatedBy, "validated-by", "", "record a validation by this reviewer")
	return cmd
}

func newItemDuplicatesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates <id>",
		Short: "List submissions rejected as near-duplicates of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				markers, err := reg.Duplicates(ctx, args[0])
				if err != nil {
					return err
				}
				return o.printJSON(markers)
			})
		},
	}
}
