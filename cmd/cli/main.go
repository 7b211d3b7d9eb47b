package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "journalpost",
	Short: "journalpost CLI - scheduled journal export",
	Long: `journalpost CLI manages scheduled journal exports over the HTTP API.
Register for an API key, create one-shot export schedules, and inspect
their execution history.`,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "API server base URL")
	rootCmd.PersistentFlags().String("api-key", "", "API key (or JOURNALPOST_API_KEY)")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.SetEnvPrefix("journalpost")
	viper.BindEnv("api-key", "JOURNALPOST_API_KEY")

	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newDeleteCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
