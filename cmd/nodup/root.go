package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var (
	configFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "nodup",
		Short: "TTL based distributed lock against duplicate submissions",
		Long: fmt.Sprintf(`nodup (v%s)

Guards operations with a fail-fast lock kept in a shared key-value store,
so repeated or concurrent submissions of the same request are rejected.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nodup",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nodup v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("store", "memory", "lock store to use (memory, redis, etcd)")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "address of the redis server")
	rootCmd.PersistentFlags().String("redis-password", "", "password of the redis server")
	rootCmd.PersistentFlags().Int("redis-db", 0, "redis database number")
	rootCmd.PersistentFlags().String("etcd-endpoints", "localhost:2379", "comma separated etcd endpoints")
	rootCmd.PersistentFlags().Duration("timeout", defaultStoreTimeout, "timeout of store round-trips")
	rootCmd.PersistentFlags().Int("max-pending-releases", 0, "maximum number of scheduled delayed releases (0 for the default)")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

// initConfig reads the config file, .env files and NODUP_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("nodup")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read config file %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
