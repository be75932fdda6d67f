/*
Package delivery 实现远程播放的投递协议。

# 概述

每一轮对话创建一个 Service，持有自己的监听器、存活状态与单槽信箱：

	WAITING_FOR_FIRST_ITEM → SERVING_ITEM → AWAITING_PICKUP
	  → (SERVING_ITEM | END_OF_STREAM) → END_ACKNOWLEDGED | TERMINATED_BY_TIMEOUT

生产端（Consume）从合成队列取音频放进信箱，等客户端通过 GET /audio
取走后再取下一段。收到结束哨兵后，/audio 返回 204 并在响应发出后置位
"最终响应已发送"，生产端等到它或握手超时后结束本轮。

第一段音频（或哨兵）出队时启动 HeartbeatMonitor；客户端在超时窗口内
没有心跳时，本轮投递被终止，剩余音频全部释放，流水线照常在本地结束。

# 端点

  - GET      /audio      200 音频字节 / 204 结束 (X-Stream-Status: END) / 404 暂无
  - GET|POST /heartbeat  200 "Heartbeat received"
  - GET      /live       WebSocket，推送 pipeline.DisplayEvent
  - GET      /health     JSON 状态
*/
package delivery
