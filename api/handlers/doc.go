/*
Package handlers 提供 voxflow HTTP 端点共用的响应与健康检查实现。

# 核心类型

  - HealthHandler：服务健康检查（/health, /ready, /version）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码，
    同时保留 Flush / Hijack 能力，长轮询与 WebSocket 都依赖它们
*/
package handlers
