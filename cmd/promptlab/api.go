package main

import (
	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/home"
	"github.com/jackzampolin/promptlab/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
// Without --server it is derived from the server section of the config.
func getServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	h, err := home.New(homeDir)
	if err != nil {
		exitf("%v", err)
	}
	cm, err := loadConfig(h)
	if err != nil {
		exitf("%v", err)
	}
	return cm.Get().Server.URL()
}

func init() {
	reg := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		reg.Register(ep)
	}
	apiCmd := reg.BuildCommands(getServerURL)

	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "Server URL (default: from server.host and server.port)",
	)

	rootCmd.AddCommand(apiCmd)
}
