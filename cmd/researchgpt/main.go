// Command researchgpt runs the research paper QA pipeline from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teilomillet/researchgpt"
	"github.com/teilomillet/researchgpt/config"
	"github.com/teilomillet/researchgpt/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "researchgpt",
		Short:         "Question answering over research PDFs",
		Long:          "researchgpt indexes research PDFs into a vector store and answers questions with ensemble retrieval and an LLM.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		addPDFCmd(),
		processLocalCmd(),
		processStorageCmd(),
		processAzureCmd(),
		listPDFsCmd(),
		deletePDFCmd(),
		cleanupBackupsCmd(),
		askCmd(),
		summaryCmd(),
		statsCmd(),
		serveCmd(),
	)
	return root
}

// withSystem loads config, assembles the pipeline, runs fn, and tears
// down.
func withSystem(fn func(ctx context.Context, sys *researchgpt.System) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	sys, err := researchgpt.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()
	return fn(ctx, sys)
}

func addPDFCmd() *cobra.Command {
	var noOrganize bool
	cmd := &cobra.Command{
		Use:   "add-pdf <file>",
		Short: "Index a PDF and archive it in local storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				if err := sys.AddPDF(ctx, args[0], !noOrganize); err != nil {
					return err
				}
				fmt.Printf("Indexed %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noOrganize, "no-organize", false, "store in the archive root instead of year/month folders")
	return cmd
}

func processLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-local <directory>",
		Short: "Index every PDF under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				n, err := sys.ProcessDirectory(ctx, args[0])
				fmt.Printf("Processed %d PDFs\n", n)
				return err
			})
		},
	}
}

func processStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-storage",
		Short: "Index every PDF held in local storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				n, err := sys.ProcessLocalStorage(ctx)
				fmt.Printf("Processed %d PDFs\n", n)
				return err
			})
		},
	}
}

func processAzureCmd() *cobra.Command {
	var downloadLocal bool
	cmd := &cobra.Command{
		Use:   "process-azure",
		Short: "Download and index every PDF blob in the Azure container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				n, err := sys.ProcessAzure(ctx, downloadLocal)
				fmt.Printf("Processed %d blobs\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&downloadLocal, "download-local", false, "retain downloaded blobs in local storage")
	return cmd
}

func listPDFsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-pdfs",
		Short: "List the PDFs held in local storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				files, err := sys.ListPDFs()
				if err != nil {
					return err
				}
				if len(files) == 0 {
					fmt.Println("No PDFs in storage")
					return nil
				}
				for _, f := range files {
					fmt.Printf("%-50s %10d bytes  %s\n", f.Name, f.Size, f.ModTime.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func deletePDFCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-pdf <name>",
		Short: "Remove a PDF from local storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				if err := sys.DeletePDF(args[0]); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func cleanupBackupsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup-backups",
		Short: "Delete storage backups older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				n, err := sys.CleanupBackups(time.Duration(days) * 24 * time.Hour)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d backups\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 30, "retention window in days")
	return cmd
}

func askCmd() *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed papers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				question := joinArgs(args)
				answer, err := sys.Ask(ctx, question)
				if err != nil {
					return err
				}
				fmt.Println(answer.Text)
				if showSources {
					printSources(answer)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved context chunks")
	return cmd
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [topic]",
		Short: "Summarize the indexed papers, optionally scoped to a topic",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				var topic string
				if len(args) > 0 {
					topic = joinArgs(args)
				}
				answer, err := sys.Summarize(ctx, topic)
				if err != nil {
					return err
				}
				fmt.Println(answer.Text)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				stats, err := sys.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Collection:     %s (%s)\n", stats.Collection, stats.StoreType)
				fmt.Printf("Indexed chunks: %d\n", stats.IndexedChunks)
				fmt.Printf("Retrieval:      top-k %d, min score %.2f, weights %v, rrf %g\n",
					stats.Retrieval.TopK, stats.Retrieval.MinScore, stats.Retrieval.Weights, stats.Retrieval.RRFConstant)
				fmt.Printf("Chunking:       size %d, overlap %d\n", stats.Chunking.Size, stats.Chunking.Overlap)
				fmt.Printf("Stored PDFs:    %d (%d bytes)\n", stats.Storage.TotalFiles, stats.Storage.TotalBytes)
				fmt.Printf("Backups:        %d (%d bytes)\n", stats.Storage.BackupFiles, stats.Storage.BackupBytes)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *researchgpt.System) error {
				return server.New(sys).Run(addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func printSources(a researchgpt.Answer) {
	fmt.Println("\nSources:")
	for i, r := range a.Context {
		name := r.Metadata["file_name"]
		if name == "" {
			name = "unknown"
		}
		fmt.Printf("%d. [%s] %s (score %.4f)\n", i+1, r.Source, name, r.Score)
	}
}
