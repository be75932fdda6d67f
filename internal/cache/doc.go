/*
包 cache 提供基于 Redis 的缓存管理能力，用于缓存合成好的音频。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭；所有键统一加上 KeyPrefix。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete 与 GetJSON/SetJSON。
  - Config：地址、密码、连接池大小、默认 TTL、键前缀与健康检查间隔。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断；关闭后调用返回
ErrClosed。
*/
package cache
