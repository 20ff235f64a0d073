package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/instructoria/internal/content"
	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/logger"
)

var lessonCmd = &cobra.Command{
	Use:   "lesson",
	Short: "Validate, import and inspect lesson documents",
}

var lessonValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check lesson JSON files against the content schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			doc, err := lesson.Parse(data)
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s\n", path)
				var verr *lesson.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintf(out, "    - %s\n", p)
					}
				} else {
					fmt.Fprintf(out, "    - %v\n", err)
				}
				continue
			}
			fmt.Fprintf(out, "✓ %s  (%q, %d activities)\n", path, doc.Metadata.Title, doc.TotalActivities())
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d lesson files invalid", failed, len(args))
		}
		return nil
	},
}

var lessonImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a lesson document in the database as published",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		_, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		doc, err := content.NewDB(st.Lessons()).Import(cmd.Context(), id, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %q as %s (%d activities)\n", doc.Metadata.Title, id, doc.TotalActivities())
		return nil
	},
}

var lessonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lessons from the lesson directory and the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		out := cmd.OutOrStdout()

		dir := content.NewDir(cfg.Lessons.Dir, logger.Nop())
		ids, err := dir.List()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-32s  %-8s  %-10s  %s\n", "ID", "Source", "Activities", "Title")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, id := range ids {
			doc, err := dir.Get(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "%-32s  %-8s  %-10s  %s\n", truncate(id, 32), "dir", "-", "invalid: "+err.Error())
				continue
			}
			fmt.Fprintf(out, "%-32s  %-8s  %-10d  %s\n", truncate(id, 32), "dir", doc.TotalActivities(), doc.Metadata.Title)
		}

		rows, err := st.Lessons().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list stored lessons: %w", err)
		}
		for _, l := range rows {
			source := "db"
			if !l.Published {
				source = "db/draft"
			}
			n := "-"
			if doc, err := lesson.Parse(l.Content); err == nil {
				n = fmt.Sprint(doc.TotalActivities())
			}
			fmt.Fprintf(out, "%-32s  %-8s  %-10s  %s\n", truncate(l.ID, 32), source, n, l.Title)
		}
		return nil
	},
}

var lessonShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the activity outline of a lesson",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		src := content.Chain{content.NewDir(cfg.Lessons.Dir, logger.Nop()), content.NewDB(st.Lessons())}
		doc, err := src.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOutline(cmd, doc)
		return nil
	},
}

func printOutline(cmd *cobra.Command, doc *lesson.Content) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", doc.Metadata.Title)
	if doc.Metadata.Description != "" {
		fmt.Fprintf(out, "%s\n", doc.Metadata.Description)
	}
	fmt.Fprintf(out, "%d activities, about %d minutes\n", doc.TotalActivities(), doc.Metadata.DurationMinutes)

	moment := ""
	for loc := range doc.All() {
		if loc.Moment.ID != moment {
			moment = loc.Moment.ID
			fmt.Fprintf(out, "\n[%s] %s\n", loc.Moment.ID, loc.Moment.Title)
		}
		a := loc.Activity
		fmt.Fprintf(out, "  %2d. %-24s %-12s %s\n", loc.Position, a.ID, a.Kind, a.Teaching.MainTopic)
		fmt.Fprintf(out, "      Q: %s\n", a.Verification.Question)
		for _, c := range a.Verification.Criteria {
			fmt.Fprintf(out, "      - %s\n", c)
		}
	}
}

func init() {
	lessonImportCmd.Flags().String("id", "", "Lesson id (default: file name without extension)")

	lessonCmd.AddCommand(lessonValidateCmd)
	lessonCmd.AddCommand(lessonImportCmd)
	lessonCmd.AddCommand(lessonListCmd)
	lessonCmd.AddCommand(lessonShowCmd)
}
