package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/client"
	"github.com/alfredjeanlab/certflow/internal/ui"
)

var (
	httpURL    string
	grpcAddr   string
	authToken  string
	jsonOutput bool
	noColor    bool
	actor      string

	certClient client.CertClient
)

func defaultActor() string {
	if s := os.Getenv("CERTFLOW_ACTOR"); s != "" {
		return s
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "cf <command>",
	Short:         "Complete, sign and send electrical certificates",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		certClient = client.NewHTTPClient(httpURL, authToken).WithActor(actor)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if certClient != nil {
			certClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOrDefault("CERTFLOW_HTTP_URL", "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", envOrDefault("CERTFLOW_GRPC_TARGET", "localhost:9090"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CERTFLOW_AUTH_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name recorded on changes")

	rootCmd.AddGroup(
		&cobra.Group{ID: "certs", Title: "Certificates:"},
		&cobra.Group{ID: "complete", Title: "Completion:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Certificates
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)

	// Completion
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(pdfCmd)
	rootCmd.AddCommand(emailCmd)
	rootCmd.AddCommand(jsonCmd)
	rootCmd.AddCommand(closeCmd)

	// Views
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
