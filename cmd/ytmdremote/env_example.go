package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{"Player - YouTube Music Desktop API", []string{"player-host", "player-port", "player-timeout", "search-cache-size"}},
	{"Profile Storage", []string{"storage-dir", "storage-url", "history-limit", "write-limit-per-minute"}},
	{"HTTP Server", []string{"server-host", "server-port"}},
	{"Playback Sync", []string{"poll-interval", "queue-refresh-every", "settings-refresh-every"}},
	{"Queue Engine", []string{"queue-capacity", "play-now-mode", "keep-current-on-play"}},
	{"App", []string{"handle", "language", "recommendation-limit"}},
	{"Logging", []string{"log-level", "log-format"}},
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# ytmdremote Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}

	content.WriteString("# Enable YouTube Music Desktop's API server (Settings > Integrations) before starting.\n")
	content.WriteString("# Run `ytmdremote storage` to serve only the profile storage API.\n")
	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# CLI: --%s\n", strings.Join(section.flags, ", --"))

	for _, name := range section.flags {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			continue
		}
		fmt.Fprintf(content, "%s=%s\n# %s (default: %s)\n", flagToEnvVar(name), flag.DefValue, flag.Usage, flag.DefValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
