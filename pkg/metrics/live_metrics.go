// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	liveMetricSubsystem = "live"
)

var (
	LiveMetricsRegisterOnce sync.Once

	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "connections",
		Help:      "当前已注册的连接数量",
	})

	LiveMembers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "members",
		Help:      "当前在线的会话（成员）数量",
	})

	LiveBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "broadcasts_total",
		Help:      "广播次数",
	})

	LiveDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "delivered_total",
		Help:      "成功投递到连接发送队列的文本条数",
	})

	LiveSendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "send_failures_total",
		Help:      "因发送失败而被关闭的连接次数",
	})

	LiveCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: shoutNamespace,
		Subsystem: liveMetricSubsystem,
		Name:      "commands_total",
		Help:      "按命令与结果统计的命令处理次数",
	}, []string{commandLabelName, resultLabelName})
)

// RegisterLiveMetrics 将实时服务相关的指标注册到 Prometheus Registerer 中。
func RegisterLiveMetrics(registry prometheus.Registerer) {
	LiveMetricsRegisterOnce.Do(func() {
		registry.MustRegister(LiveConnections)
		registry.MustRegister(LiveMembers)
		registry.MustRegister(LiveBroadcasts)
		registry.MustRegister(LiveDelivered)
		registry.MustRegister(LiveSendFailures)
		registry.MustRegister(LiveCommands)
	})
}
