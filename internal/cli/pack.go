package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage blacklist packs",
	Long: `Manage shield policy packs.

A pack is a YAML file of blacklist phrases (and optionally a minimum
security level) for one threat domain. Packs live in ~/.clawkeeper/packs/
and are merged into the policy at startup. A file whose name starts with
"_" is installed but disabled.

Examples:
  shield pack list                   # List installed packs
  shield pack enable jailbreaks      # Enable a pack
  shield pack disable exfiltration   # Disable a pack
  shield pack show jailbreaks        # Show pack contents`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the contents of a pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

func packsDir(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
		return "", err
	}
	return cfg.PacksDir, nil
}

func packList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(cmd)
	if err != nil {
		return err
	}

	_, infos, err := policy.LoadPacks(dir, policy.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No policy packs installed.")
		fmt.Printf("\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Println("Installed Policy Packs:")
	fmt.Println(strings.Repeat("─", 60))
	for _, info := range infos {
		if info.Err != nil {
			colorBlocked.Printf("  ⚠  %-25s %v\n", info.Name, info.Err)
			continue
		}
		status := "✅"
		if !info.Enabled {
			status = "❌"
		}
		fmt.Printf("  %s  %-25s %s\n", status, info.Name, info.Description)
		if info.Version != "" {
			fmt.Printf("       v%s by %s  (%d phrases)\n", info.Version, info.Author, info.EntryCount)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\nPacks directory: %s\n", dir)
	return nil
}

// findPack returns the path of the pack's enabled or disabled file.
func findPack(dir, name string) (path string, enabled bool, err error) {
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
		p = filepath.Join(dir, "_"+name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, false, nil
		}
	}
	return "", false, fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packEnable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Pack '%s' is already enabled.\n", name)
		return nil
	}
	target := filepath.Join(dir, strings.TrimPrefix(filepath.Base(path), "_"))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to enable pack: %w", err)
	}
	fmt.Printf("✅ Pack '%s' enabled.\n", name)
	return nil
}

func packDisable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return err
	}
	if !enabled {
		fmt.Printf("Pack '%s' is already disabled.\n", name)
		return nil
	}
	target := filepath.Join(dir, "_"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to disable pack: %w", err)
	}
	fmt.Printf("❌ Pack '%s' disabled.\n", name)
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir(cmd)
	if err != nil {
		return err
	}

	path, _, err := findPack(dir, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
