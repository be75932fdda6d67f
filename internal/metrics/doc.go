/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、流水线
阶段、远程投递与合成缓存四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，同时实现 pipeline.TurnObserver
    与 delivery.Observer。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 阶段指标：每个阶段处理条目的数量与耗时，按 stage/status 分组。
  - 轮次指标：每轮结果、耗时与句子数。
  - 投递指标：/audio 长轮询结果、心跳超时、握手超时、已投递字节数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
