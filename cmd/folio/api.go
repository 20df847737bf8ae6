package main

import (
	"github.com/spf13/cobra"

	"github.com/foliolabs/folio/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Folio server via HTTP.

These commands require a running server (folio serve).
Use --server to specify a custom server URL.

Examples:
  folio api documents generate <document-id>   # Trigger page generation
  folio api documents status <document-id>     # Show generation status
  folio api documents pages <document-id>      # List rendered pages
  folio api cover get <document-id>            # Show the cover`,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Document page generation and query commands",
}

var coverCmd = &cobra.Command{
	Use:   "cover",
	Short: "Book cover commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	documentsCmd.AddCommand((&endpoints.StartGenerationEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.GenerationStatusEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.ListPagesEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.GetPageEndpoint{}).Command(getServerURL))

	coverCmd.AddCommand((&endpoints.GetCoverEndpoint{}).Command(getServerURL))
	coverCmd.AddCommand((&endpoints.UploadCoverEndpoint{}).Command(getServerURL))
	coverCmd.AddCommand((&endpoints.DeleteCoverEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(documentsCmd)
	apiCmd.AddCommand(coverCmd)

	rootCmd.AddCommand(apiCmd)
}
