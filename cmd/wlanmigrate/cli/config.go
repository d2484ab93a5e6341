package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wlanmigrate/wlanmigrate/internal/config"
)

// RegisterConfigCommands adds configuration commands.
func RegisterConfigCommands(root *cobra.Command) {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change ~/.wlanmigrate/config.json",
	}

	cfgCmd.AddCommand(newConfigShowCmd())
	cfgCmd.AddCommand(newConfigSetCmd())

	root.AddCommand(cfgCmd)
}

func configPath() string {
	return filepath.Join(config.ConfigDir(), config.ConfigFileName)
}

func configFields(cfg config.GlobalConfig) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (file plus environment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadGlobalConfig()
			if err != nil {
				return err
			}
			fields, err := configFields(cfg)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Printf("File: %s\n", configPath())
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%v\n", k, fields[k])
			}
			w.Flush()
			return nil
		},
	}
}

// setConfigField sets key in cfg, converting value to the key's JSON type.
func setConfigField(cfg config.GlobalConfig, key, value string) (config.GlobalConfig, error) {
	if key == "instance_uuid" {
		return cfg, fmt.Errorf("instance_uuid is assigned automatically")
	}
	fields, err := configFields(cfg)
	if err != nil {
		return cfg, err
	}
	current, ok := fields[key]
	if !ok {
		return cfg, fmt.Errorf("unknown config key %q", key)
	}

	switch current.(type) {
	case float64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = n
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = b
	default:
		fields[key] = value
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return cfg, err
	}
	var next config.GlobalConfig
	if err := json.Unmarshal(data, &next); err != nil {
		return cfg, err
	}
	if err := next.Validate(); err != nil {
		return cfg, err
	}
	return next, nil
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			// Read the file alone so environment overrides are not persisted.
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			cfg, err = setConfigField(cfg, args[0], args[1])
			if err != nil {
				return err
			}
			if err := config.SaveFile(path, cfg); err != nil {
				return err
			}
			fmt.Printf("%s updated.\n", args[0])
			return nil
		},
	}
}
