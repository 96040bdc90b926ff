package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	awsprovider "github.com/zalando-incubator/e2s/internal/provider/aws"
	"github.com/zalando-incubator/e2s/pkg/config"
	"github.com/zalando-incubator/e2s/pkg/cluster"
	"github.com/zalando-incubator/e2s/pkg/housekeeper"
	"github.com/zalando-incubator/e2s/pkg/log"
	"github.com/zalando-incubator/e2s/pkg/supervisor"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the supervisor and housekeeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE()
		},
	}

	cmd.Flags().String("data-dir", "data", "etcd data directory")
	cmd.Flags().String("binary", "/bin/etcd", "path to the etcd binary")
	cmd.Flags().String("ctl-binary", "", "path to the etcdctl binary (defaults to <binary>ctl)")
	cmd.Flags().String("hosted-zone", "", "route53 hosted zone to publish DNS records into")
	cmd.Flags().String("active-regions", "", "comma-separated list of active regions (enables multi-region mode)")
	cmd.Flags().String("etcd-version", "", "target etcd version")
	cmd.Flags().String("etcd-version-prev", "", "previous etcd version, used while run_old is set")
	cmd.Flags().Duration("tick-interval", config.NAPTIME, "housekeeper tick interval")

	viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("e2s")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// HOSTED_ZONE, ACTIVE_REGIONS, ETCDVERSION, ETCDVERSION_PREV are the
	// bare environment variable names the daemon has always been deployed
	// with; bind them directly alongside the viper/cobra flag convention
	// above so either spelling works.
	viper.BindEnv("hosted-zone", "HOSTED_ZONE")
	viper.BindEnv("active-regions", "ACTIVE_REGIONS")
	viper.BindEnv("etcd-version", "ETCDVERSION")
	viper.BindEnv("etcd-version-prev", "ETCDVERSION_PREV")

	return cmd
}

func runE() error {
	cfg, err := config.New(&config.Config{
		DataDir:         viper.GetString("data-dir"),
		Binary:          viper.GetString("binary"),
		CtlBinary:       viper.GetString("ctl-binary"),
		HostedZone:      viper.GetString("hosted-zone"),
		ActiveRegions:   config.ParseRegions(viper.GetString("active-regions")),
		EtcdVersion:     viper.GetString("etcd-version"),
		EtcdVersionPrev: viper.GetString("etcd-version-prev"),
		TickInterval:    viper.GetDuration("tick-interval"),
	})
	if err != nil {
		return err
	}

	cloud, err := awsprovider.NewClient()
	if err != nil {
		return err
	}
	cloud.Regions = cfg.ActiveRegions

	state := cluster.NewSharedState()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("received termination signal")
		cancel()
	}()

	hk := housekeeper.New(cfg, cloud, cloud, cloud, state)
	go hk.Run(ctx)

	sv := supervisor.New(cfg, cloud, cloud, state)
	if err := sv.Run(ctx); err != nil {
		return err
	}

	// give the housekeeper a moment to observe the cancelled context and
	// stop before the process exits.
	time.Sleep(100 * time.Millisecond)
	return nil
}
