// Command difybridge serves Dify chat applications as AG-UI agents.
//
// Configuration comes from an optional YAML file (--config), a .env file
// and the environment:
//
//	DIFY_API_KEY            - Dify app key for the implicit "dify" agent
//	DIFY_API_BASE           - Dify API root (default: https://api.dify.ai/v1)
//	DIFY_FIX_EVENT_IDS      - Normalise event ids (default: true)
//	DIFY_DEBUG              - Log translator decisions (default: false)
//	DIFY_TIMEOUT            - Upstream timeout, e.g. 60s (default: 60s)
//	DIFYBRIDGE_PORT         - Server port (default: 9000)
//	DIFYBRIDGE_BASE_PATH    - Route prefix
//	DIFYBRIDGE_LOG_LEVEL    - debug, info, warn, or error (default: info)
//	DIFYBRIDGE_LOG_FORMAT   - text or json (default: text)
//	DIFYBRIDGE_USER_HEADER  - Header supplying the Dify user when the body has none
//	DIFYBRIDGE_CORS         - Enable permissive CORS (default: false)
//
// Usage:
//
//	DIFY_API_KEY=app-xxx difybridge serve
//	difybridge run --query "What is AG-UI?" --user u1
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "difybridge",
	Short: "Serve Dify chat apps over the AG-UI protocol",
	Long: `difybridge forwards AG-UI run requests to Dify's chat-messages API
and streams the answer back as AG-UI events over Server-Sent Events.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
