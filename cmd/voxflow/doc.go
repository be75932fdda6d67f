/*
Package main 提供 voxflow 语音对话程序入口。

# 概述

cmd/voxflow 把配置、日志、指标、遥测与流水线编排组装成可执行程序。
每一轮对话依次经过转写、可选审查、流式补全、断句合成，
最后在本机播放或通过 HTTP 投递给远程播放端。

# 核心类型

  - App：轮次循环，按当前配置快照为每轮组装协作者与音频消费者
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（语音模式）、chat（文本模式）、version、health
  - 中间件链：Recovery、RequestID、RequestLogger、MetricsMiddleware、
    RateLimiter（基于 IP）
  - 配置热重载：Reloader 监听配置文件，新配置从下一轮开始生效
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
