/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// starting one controller (CatalogueReconciler) that serves every Catalogue in the cluster.

// cmd/main.go

package main

import (
	"flag"
	"os"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	cataloguev1 "github.com/uri-tech/catalogue-operator/api/v1"
	"github.com/uri-tech/catalogue-operator/configenv"
	"github.com/uri-tech/catalogue-operator/internal/controller"
	"github.com/uri-tech/catalogue-operator/internal/workload"
	"github.com/uri-tech/catalogue-operator/loggerpkg"
)

// Define global variables.
var (
	scheme = runtime.NewScheme()
	// Addresses for metrics and health probes.
	metricsAddr, probeAddr string
	// Flag to enable leader election.
	enableLeaderElection bool
	// Configuration options for the zap logger.
	opts = zap.Options{
		Development: true,
	}
	// Logger for setup processes.
	setupLog = ctrl.Log.WithName("setup")
)

// Initialize command line flags and the scheme.
func init() {
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	opts.BindFlags(flag.CommandLine)

	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(cmv1.AddToScheme(scheme))
	utilruntime.Must(cataloguev1.AddToScheme(scheme))
	//+kubebuilder:scaffold:scheme
}

// Entry point of the program.
func main() {
	defer loggerpkg.Sync()

	// Parse command line flags.
	flag.Parse()

	// Set up the logger.
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := configenv.LoadConfig()
	if err != nil {
		setupLog.Error(err, "invalid operator configuration")
		os.Exit(1)
	}
	setupLog.Info("loaded configuration", "runMode", cfg.RunMode, "version", cfg.OperatorVersion)

	restConfig := ctrl.GetConfigOrDie()

	// Initialize the manager with configurations. Only the leader reconciles, so
	// only the leader writes to the workloads.
	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		MetricsBindAddress:     metricsAddr,
		Port:                   9443,
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "5c1e7a42.catalogue.uri-tech.github.io",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	// Uncached client for the workload files, which are read back right after being written.
	direct, err := client.New(restConfig, client.Options{Scheme: scheme, Mapper: mgr.GetRESTMapper()})
	if err != nil {
		setupLog.Error(err, "unable to create direct client")
		os.Exit(1)
	}

	kubernetesClient := kubernetes.NewForConfigOrDie(restConfig)

	// Set up the custom reconciler.
	if err = (&controller.CatalogueReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Direct:   direct,
		Executor: &workload.SPDYExecutor{Config: restConfig, Clientset: kubernetesClient},
		Recorder: mgr.GetEventRecorderFor("catalogue-operator"),
		Config:   cfg,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "Catalogue")
		os.Exit(1)
	}

	// Add health checks.
	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	// Add readiness checks.
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	// Start the manager and listen for termination signals.
	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
