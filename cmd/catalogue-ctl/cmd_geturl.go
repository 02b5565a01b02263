package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
)

func GetURLCommand(log *zap.SugaredLogger, opt *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get-url",
		Short: "Print the URL the catalogue is served at",
		Args:  cobra.NoArgs,
		RunE:  GetURLFunc(log, opt),
	}
}

// GetURLFunc prints the ingress URL of the catalogue when it has one, the
// in-cluster URL otherwise.
func GetURLFunc(log *zap.SugaredLogger, opt *options) cobraFuncE {
	return handleErrors(log, func(cmd *cobra.Command, args []string) error {
		c, err := newClient(opt.kubeconfig)
		if err != nil {
			return err
		}

		cat := &cataloguev1.Catalogue{}
		if err := c.Get(cmd.Context(), client.ObjectKey{Namespace: opt.namespace, Name: opt.catalogue}, cat); err != nil {
			return fmt.Errorf("failed to get catalogue %s/%s: %w", opt.namespace, opt.catalogue, err)
		}
		if cat.Status.URL == "" {
			return fmt.Errorf("catalogue %s/%s has not been served yet", opt.namespace, opt.catalogue)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), cat.Status.URL)
		return err
	})
}
