package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/uri-tech/catalogue-operator/internal/catalogue"
)

type publishOptions struct {
	*options
	app          string
	item         catalogue.Item
	apiEndpoints string
}

func PublishCommand(log *zap.SugaredLogger, parent *options) *cobra.Command {
	opt := &publishOptions{options: parent}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the catalogue entry of an application",
		RunE:  PublishFunc(log, opt),
	}

	cmd.Flags().StringVar(&opt.app, "app", "", "Application publishing the entry.")
	cmd.Flags().StringVar(&opt.item.Name, "name", "", "Display name of the entry.")
	cmd.Flags().StringVar(&opt.item.URL, "url", "", "URL of the application.")
	cmd.Flags().StringVar(&opt.item.Icon, "icon", "", "Icon of the entry.")
	cmd.Flags().StringVar(&opt.item.Description, "description", "", "Description of the entry.")
	cmd.Flags().StringVar(&opt.item.APIDocs, "api-docs", "", "URL of the API documentation.")
	cmd.Flags().StringVar(&opt.apiEndpoints, "api-endpoints", "", "JSON or YAML map of API endpoint names to paths.")

	return cmd
}

func PublishFunc(log *zap.SugaredLogger, opt *publishOptions) cobraFuncE {
	return handleErrors(log, func(cmd *cobra.Command, args []string) error {
		if opt.app == "" {
			return errors.New("--app is required")
		}
		if opt.apiEndpoints != "" {
			endpoints := map[string]string{}
			if err := yaml.Unmarshal([]byte(opt.apiEndpoints), &endpoints); err != nil {
				return fmt.Errorf("invalid --api-endpoints: %w", err)
			}
			opt.item.APIEndpoints = endpoints
		}

		c, err := newClient(opt.kubeconfig)
		if err != nil {
			return err
		}

		if err := catalogue.PublishItem(cmd.Context(), c, opt.namespace, opt.catalogue, opt.app, opt.item, true); err != nil {
			return fmt.Errorf("failed to publish entry of %s: %w", opt.app, err)
		}

		log.Infow("published catalogue entry", "catalogue", opt.catalogue, "app", opt.app)
		return nil
	})
}
