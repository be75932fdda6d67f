// Package api 承载 voxflow 对外 HTTP 接口的公共部分。
//
// 远程播放客户端使用的端点：
//
//	GET      /audio      长轮询取下一段音频（200 音频 / 204 结束 / 404 暂无）
//	GET|POST /heartbeat  心跳
//	GET      /live       WebSocket 文本直播（用户原话与模型 token）
//	GET      /health     健康检查
//
// 响应与错误的统一格式见 handlers 子包。
package api
