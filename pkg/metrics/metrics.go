package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	edgeTrainer = "edge_trainer"

	// Training metrics
	trainingSubmissionsTotal = "training_submissions_total"
	statusTransitionsTotal   = "status_transitions_total"
	deployPushesTotal        = "deploy_pushes_total"
	ActiveReconcilers        = "active_reconcilers"

	// Labels
	retrainingLabel = "retraining"
	statusLabel     = "status"
	deployKindLabel = "kind"

	DeployKindModel = "model"
	DeployKindDemo  = "demo"
)

/**
* Metrics definition
**/
var trainingSubmissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: edgeTrainer,
		Name:      trainingSubmissionsTotal,
		Help:      "number of training jobs submitted to the trainer service",
	},
	[]string{retrainingLabel},
)

var statusTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: edgeTrainer,
		Name:      statusTransitionsTotal,
		Help:      "number of training status updates partitioned by the new status",
	},
	[]string{statusLabel},
)

var deployPushesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: edgeTrainer,
		Name:      deployPushesTotal,
		Help:      "number of deployments pushed to the inference module",
	},
	[]string{deployKindLabel},
)

var activeReconcilersMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: edgeTrainer,
		Name:      ActiveReconcilers,
		Help:      "number of status reconciliation loops currently running",
	},
)

func IncreaseTrainingSubmissionsMetric(retraining bool) {
	trainingSubmissionsTotalMetric.With(prometheus.Labels{
		retrainingLabel: strconv.FormatBool(retraining),
	}).Inc()
}

func IncreaseStatusTransitionsMetric(status string) {
	statusTransitionsTotalMetric.With(prometheus.Labels{
		statusLabel: status,
	}).Inc()
}

func IncreaseDeployPushesMetric(kind string) {
	deployPushesTotalMetric.With(prometheus.Labels{
		deployKindLabel: kind,
	}).Inc()
}

func UpdateActiveReconcilersMetric(count int) {
	activeReconcilersMetric.Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(trainingSubmissionsTotalMetric)
	prometheus.MustRegister(statusTransitionsTotalMetric)
	prometheus.MustRegister(deployPushesTotalMetric)
	prometheus.MustRegister(activeReconcilersMetric)
}
