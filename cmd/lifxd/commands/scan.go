package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/lifx-lan/internal/app/bootstrap"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// scanCmd 运行几轮发现后打印设备表
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover lights and print them",
	Long: `Broadcast discovery for the given duration (plus unicast probes to the
configured lights) and print every device seen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl == "" {
			cfg.Logging.Level = "warn"
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		devices, err := bootstrap.Scan(ctx, cfg, wait, logger)
		if err != nil {
			return err
		}
		printDevices(devices)
		return nil
	},
}

func init() {
	scanCmd.Flags().Duration("wait", 6*time.Second, "How long to listen for lights")
}

func printDevices(devices []device.Device) {
	if len(devices) == 0 {
		fmt.Println("No lights found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tPORT\tLABEL\tSTATUS")
	for _, d := range devices {
		label := "-"
		if d.Label != nil {
			label = *d.Label
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Address, d.Port, label, d.Status)
	}
	_ = w.Flush()
	fmt.Printf("\n%d light(s)\n", len(devices))
}

// typesCmd 列出支持的报文类型
var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported packet types",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, name := range lifx.TypeNames() {
			id, _ := lifx.LookupType(name)
			fmt.Fprintf(w, "%d\t%s\n", id, name)
		}
		_ = w.Flush()
	},
}
