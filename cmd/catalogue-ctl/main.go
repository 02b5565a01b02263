// catalogue-ctl is the application side of the catalogue: it publishes an
// application's catalogue entry, and prints where a catalogue is served.
//
//	catalogue-ctl publish --app grafana --name Grafana --url http://grafana:3000
//	catalogue-ctl get-url --catalogue catalogue
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(cataloguev1.AddToScheme(scheme))
}

// options are the flags shared by all commands.
type options struct {
	kubeconfig string
	namespace  string
	catalogue  string
}

type cobraFuncE func(cmd *cobra.Command, args []string) error

// newClient is replaced in tests.
var newClient = func(kubeconfig string) (client.Client, error) {
	return setupClient(kubeconfig, clientcmd.BuildConfigFromFlags)
}

// main is the entry point of the application.
func main() {
	defer loggerpkg.Sync()
	log := loggerpkg.GetNamedLogger("main")

	if err := rootCommand(log).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand(log *zap.SugaredLogger) *cobra.Command {
	opt := &options{}

	cmd := &cobra.Command{
		Use:           "catalogue-ctl",
		Short:         "Publish catalogue entries and look up catalogues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opt.kubeconfig, "kubeconfig", os.Getenv("HOME")+"/.kube/config", "Path to a kubeconfig. Only required if out-of-cluster.")
	cmd.PersistentFlags().StringVarP(&opt.namespace, "namespace", "n", "default", "Namespace of the catalogue.")
	cmd.PersistentFlags().StringVar(&opt.catalogue, "catalogue", "catalogue", "Name of the Catalogue resource.")

	cmd.AddCommand(
		PublishCommand(log, opt),
		GetURLCommand(log, opt),
	)
	return cmd
}

// handleErrors logs the error of a command before returning it.
func handleErrors(log *zap.SugaredLogger, f cobraFuncE) cobraFuncE {
	return func(cmd *cobra.Command, args []string) error {
		err := f(cmd, args)
		if err != nil {
			log.Errorw("operation failed", zap.Error(err))
		}
		return err
	}
}

// setupClient builds a controller-runtime client from the provided kubeconfig.
func setupClient(kubeconfig string, buildConfigFunc func(string, string) (*rest.Config, error)) (client.Client, error) {
	config, err := buildConfigFunc("", kubeconfig)
	if err != nil {
		return nil, errors.New("error building kubeconfig: " + err.Error())
	}

	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, errors.New("error creating Kubernetes client: " + err.Error())
	}
	return c, nil
}
