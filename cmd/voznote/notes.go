package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voznote/internal/application"
	"voznote/internal/domain"
)

var (
	notesJSON   bool
	notesQuery  string
	exportToDir string
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage stored notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		notes := a.view.Search(notesQuery)

		if notesJSON {
			return printJSON(notes)
		}
		if len(notes) == 0 {
			fmt.Println("Nenhuma nota encontrada.")
			return nil
		}
		for _, n := range notes {
			fmt.Printf("%s  %s  %s  %s\n", n.ID, n.Date, n.DurationFormatted, n.Title)
		}
		return nil
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		note, ok := a.notes.Get(args[0])
		if !ok {
			return fmt.Errorf("note %s: %w", args[0], domain.ErrNotFound)
		}
		if notesJSON {
			return printJSON(note)
		}
		printNote(note)
		return nil
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.view.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Nota %s excluída.\n", args[0])
		return nil
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a note as a text page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		note, ok := a.notes.Get(args[0])
		if !ok {
			return fmt.Errorf("note %s: %w", args[0], domain.ErrNotFound)
		}

		text := application.ExportText(note)
		if exportToDir == "" {
			fmt.Print(text)
			return nil
		}

		name := exportPath(exportToDir, note)
		if err := os.WriteFile(name, []byte(text), 0644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd, notesShowCmd, notesDeleteCmd, notesExportCmd)

	notesCmd.PersistentFlags().BoolVar(&notesJSON, "json", false, "output in JSON format")
	notesListCmd.Flags().StringVarP(&notesQuery, "query", "q", "", "filter by title or summary")
	notesExportCmd.Flags().StringVarP(&exportToDir, "out", "o", "", "write to a file in this directory instead of stdout")
}

func printNote(n domain.Note) {
	fmt.Printf("%s\n%s | %s\n\n", n.Title, n.Date, n.DurationFormatted)
	fmt.Printf("Resumo:\n%s\n\n", n.Summary)
	fmt.Printf("Transcrição:\n%s\n", n.Transcription)
	if len(n.Tags) > 0 {
		fmt.Printf("\nTags: %s\n", strings.Join(n.Tags, ", "))
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func exportPath(dir string, note domain.Note) string {
	return filepath.Join(dir, slug(note.Title)+".txt")
}

// slug keeps letters and digits, joining runs of anything else with a dash.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127 {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "nota"
	}
	return out
}
