package consumer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelStreamARN = "stream_arn"
	labelShardID   = "shard_id"
)

var (
	counterRecordsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aws",
		Subsystem: "dynamodb_streams",
		Name:      "records_consumed_count_total",
		Help:      "Number of records handed to the scan function for the shard belonging to the stream.",
	}, []string{
		labelStreamARN,
		labelShardID,
	})

	counterCheckpointsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aws",
		Subsystem: "dynamodb_streams",
		Name:      "checkpoints_written_count_total",
		Help:      "Number of checkpoints that have been written for the shard belonging to the stream.",
	}, []string{
		labelStreamARN,
		labelShardID,
	})

	counterEmptyPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aws",
		Subsystem: "dynamodb_streams",
		Name:      "empty_polls_count_total",
		Help:      "Number of GetRecords calls on an open shard that returned no records.",
	}, []string{
		labelStreamARN,
		labelShardID,
	})

	gaugeActiveShards = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "aws",
		Subsystem: "dynamodb_streams",
		Name:      "active_shards",
		Help:      "Number of shards of the stream currently being read.",
	}, []string{
		labelStreamARN,
	})
)

func registerMetrics(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		counterRecordsConsumed,
		counterCheckpointsWritten,
		counterEmptyPolls,
		gaugeActiveShards,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
