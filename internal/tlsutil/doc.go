// Package tlsutil 提供集中式 TLS 配置：投递服务的 HTTPS 监听、
// Redis 缓存连接以及 health 子命令的 HTTP 客户端（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
