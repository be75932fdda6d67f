// Copyright (c) voxflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 voxflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。流水线各阶段、远程投递服务
与命令行入口共用这里的结构化错误体系，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，携带错误码、HTTP 状态码、Retryable
    标记以及出错的流水线阶段
  - GetErrorCode / IsRetryable：沿错误链提取元数据

# 使用示例

	err := types.NewError(types.ErrSynthesisFailed, "tts exited").
		WithStage("synthesis").
		WithCause(cause)
*/
package types
