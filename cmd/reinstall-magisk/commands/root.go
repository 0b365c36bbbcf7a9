package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

var rootCmd = &cobra.Command{
	Use:   "reinstall-magisk",
	Short: "Re-root a LineageOS device after an OTA update",
	Long: `Re-acquires the running LineageOS build, extracts its boot image,
has the device-resident Magisk patch it, and flashes the result back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Failures print a single-line diagnostic and exit
// with the code reserved for the failure kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.KindOf(err).ExitCode())
	}
}

func init() {
	rootCmd.PersistentFlags().String("serial", "", "Target device serial (empty: the sole connected device)")
	rootCmd.PersistentFlags().String("adb-path", "adb", "adb executable")
	rootCmd.PersistentFlags().String("fastboot-path", "fastboot", "fastboot executable")
	rootCmd.PersistentFlags().String("portal-url", "https://download.lineageos.org", "LineageOS download portal")
	rootCmd.PersistentFlags().String("mirror-host", "mirrorbits.lineageos.org", "Trusted mirror host for build URLs")
	rootCmd.PersistentFlags().String("work-dir", "/tmp/reinstall-magisk", "Local staging directory")
	rootCmd.PersistentFlags().String("journal-path", ".artifacts/runs.db", "Run journal SQLite path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().Int("bootloader-timeout", 60, "Bootloader transition timeout in seconds")
	rootCmd.PersistentFlags().Int("poll-interval", 5, "Bootloader poll interval in seconds")

	viper.BindPFlag("serial", rootCmd.PersistentFlags().Lookup("serial"))
	viper.BindPFlag("adb-path", rootCmd.PersistentFlags().Lookup("adb-path"))
	viper.BindPFlag("fastboot-path", rootCmd.PersistentFlags().Lookup("fastboot-path"))
	viper.BindPFlag("portal-url", rootCmd.PersistentFlags().Lookup("portal-url"))
	viper.BindPFlag("mirror-host", rootCmd.PersistentFlags().Lookup("mirror-host"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("journal-path", rootCmd.PersistentFlags().Lookup("journal-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("bootloader-timeout", rootCmd.PersistentFlags().Lookup("bootloader-timeout"))
	viper.BindPFlag("poll-interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
}
