// Package cmd wires the tilebank CLI: a tile server over the cache
// repository plus the seed/cleanup worker.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tilebank",
	Short: "A map tile cache server with seeding and cleanup",
	Long: `Tilebank serves XYZ tiles, TileJSON, styles, sprites, glyph ranges and
GeoJSON from a data directory of cache stores, and keeps those stores warm
with a companion seed/cleanup worker.

Stores live under DATA_DIR as XYZ directory trees, MBTiles files or
PostgreSQL tables; misses are filled read-through from upstream tile URLs.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("data_dir", "", "Data directory (defaults to $DATA_DIR)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	if err := viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data_dir")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TILEBANK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// dataDir resolves the data directory from the flag or the DATA_DIR
// environment variable.
func dataDir() (string, error) {
	dir := viper.GetString("data_dir")
	if dir == "" {
		dir = os.Getenv("DATA_DIR")
	}
	if dir == "" {
		return "", fmt.Errorf("no data directory: set --data_dir or DATA_DIR")
	}
	return dir, nil
}
