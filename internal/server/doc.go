/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
远程投递服务每一轮创建一个 Manager，指标端点在进程内常驻一个。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/Wait 等生命周期方法。监听 ":0" 时可通过
    ListenAddr 取得实际地址。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时。
*/
package server
