package metrics

import (
	"context"
	"fmt"

	"github.com/kubev2v/edge-trainer/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// projectStatsCollector exposes the usage counters persisted on the projects.
type projectStatsCollector struct {
	store             store.Store
	totalProjects     *prometheus.Desc
	deployedProjects  *prometheus.Desc
	trainingCounter   *prometheus.Desc
	retrainingCounter *prometheus.Desc
}

func NewProjectStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_projects_%s", edgeTrainer, name)
	}

	return &projectStatsCollector{
		store: s,
		totalProjects: prometheus.NewDesc(
			fqName("total"),
			"Total number of projects.",
			nil,
			prometheus.Labels{},
		),
		deployedProjects: prometheus.NewDesc(
			fqName("deployed_total"),
			"Number of projects whose model is deployed.",
			nil,
			prometheus.Labels{},
		),
		trainingCounter: prometheus.NewDesc(
			fqName("trainings_total"),
			"Sum of the training counters of all projects.",
			nil,
			prometheus.Labels{},
		),
		retrainingCounter: prometheus.NewDesc(
			fqName("retrainings_total"),
			"Sum of the retraining counters of all projects.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *projectStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalProjects
	ch <- c.deployedProjects
	ch <- c.trainingCounter
	ch <- c.retrainingCounter
}

// Collect implements Collector.
func (c *projectStatsCollector) Collect(ch chan<- prometheus.Metric) {
	projects, err := c.store.Project().List(context.Background(), nil)
	if err != nil {
		zap.S().Named("project_collector").Errorf("failed to collect project statistics: %s", err)
		return
	}

	var deployed, trainings, retrainings int
	for _, p := range projects {
		if p.Deployed {
			deployed++
		}
		trainings += p.TrainingCounter
		retrainings += p.RetrainingCounter
	}

	ch <- prometheus.MustNewConstMetric(c.totalProjects, prometheus.GaugeValue, float64(len(projects)))
	ch <- prometheus.MustNewConstMetric(c.deployedProjects, prometheus.GaugeValue, float64(deployed))
	ch <- prometheus.MustNewConstMetric(c.trainingCounter, prometheus.CounterValue, float64(trainings))
	ch <- prometheus.MustNewConstMetric(c.retrainingCounter, prometheus.CounterValue, float64(retrainings))
}
