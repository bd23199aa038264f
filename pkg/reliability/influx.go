package reliability

import (
	"context"
	"time"

	"equisense/pkg/logger"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

// InfluxConfig InfluxDB 连接配置
type InfluxConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// pointWriter 同步写点接口，由 api.WriteAPIBlocking 实现
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxReporter 把健康快照写入 InfluxDB，供外部监控面板使用
type InfluxReporter struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
	log         *logrus.Entry
}

// NewInfluxReporter 创建上报器
func NewInfluxReporter(config InfluxConfig) *InfluxReporter {
	client := influxdb2.NewClient(config.URL, config.Token)
	r := newInfluxReporter(client.WriteAPIBlocking(config.Org, config.Bucket), config.Measurement)
	r.client = client
	return r
}

func newInfluxReporter(w pointWriter, measurement string) *InfluxReporter {
	if measurement == "" {
		measurement = "source_reliability"
	}
	return &InfluxReporter{
		writer:      w,
		measurement: measurement,
		log:         logger.WithComponent("InfluxReporter"),
	}
}

// Ping 检查 InfluxDB 健康状态
func (r *InfluxReporter) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	_, err := r.client.Health(ctx)
	return err
}

// Report 写入一次快照，每个数据源一个点
func (r *InfluxReporter) Report(ctx context.Context, snapshot []SourceReliability) error {
	if len(snapshot) == 0 {
		return nil
	}
	now := time.Now()
	points := make([]*write.Point, 0, len(snapshot))
	for _, s := range snapshot {
		points = append(points, r.point(s, now))
	}
	if err := r.writer.WritePoint(ctx, points...); err != nil {
		r.log.WithError(err).Warn("写入可靠性快照失败")
		return err
	}
	r.log.WithField("points", len(points)).Debug("可靠性快照已写入")
	return nil
}

func (r *InfluxReporter) point(s SourceReliability, ts time.Time) *write.Point {
	return influxdb2.NewPointWithMeasurement(r.measurement).
		AddTag("source", s.Source).
		AddField("successes", s.Successes).
		AddField("failures", s.Failures).
		AddField("total_attempts", s.TotalAttempts).
		AddField("success_rate", s.SuccessRate).
		AddField("weight", s.Weight).
		SetTime(ts)
}

// Close 关闭客户端
func (r *InfluxReporter) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
