// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 voxflow 提供 TracerProvider、MeterProvider 以及轮次级别的 OTel 指标。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
