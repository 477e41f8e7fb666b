package cmd

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tonhe/fieldscan/internal/config"
	"github.com/tonhe/fieldscan/tui/styles"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFile(cmd)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration, overrides included",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		cfg.ReadTimeoutStr = cfg.ReadTimeout.String()
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file and create the data directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFile(cmd)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.EnsureDirs(); err != nil {
			return fmt.Errorf("creating directories: %w", err)
		}
		if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Wrote %s.\n", path)
		return nil
	},
}

var configThemeCmd = &cobra.Command{
	Use:   "theme NAME",
	Short: "Set the default theme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if styles.GetThemeByName(name) == nil {
			return fmt.Errorf("unknown theme %q (run 'fieldscan themes' to list them)", name)
		}
		path, err := configFile(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg.Theme = name
		if err := config.SaveConfig(cfg, path); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Printf("Default theme set to %q.\n", name)
		return nil
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List available themes",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range styles.ListThemes() {
			fmt.Println(name)
		}
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing config file")
	configCmd.AddCommand(configPathCmd, configShowCmd, configInitCmd, configThemeCmd)
	rootCmd.AddCommand(configCmd, themesCmd)
}

// configFile returns --config or the platform default path.
func configFile(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.GetConfigPath()
}
