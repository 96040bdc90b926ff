package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zalando-incubator/e2s/pkg/buildinfo"
	"github.com/zalando-incubator/e2s/pkg/log"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print e2s version",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.Marshal(map[string]string{
				"version": buildinfo.Version,
				"gitSHA":  buildinfo.GitSHA,
				"goVersion": buildinfo.GoVersion,
			})
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("%s\n", data)
		},
	}
	return cmd
}
