/*
Package testutil 提供 voxflow 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 队列辅助: DrainQueue / QueueFromSlice，收集或构造 StageQueue 内容
  - 音频辅助: TempArtifact 在临时目录里创建文件型音频

# 子包

  - testutil/mocks: 协作者 Mock，包括 MockTranscriber、MockTranslator、
    MockStreamer、MockSynthesizer、MockPlayer、MockChecker，
    均支持 Builder 模式与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	streamer := mocks.NewMockStreamer().WithDeltas("Hello", " world,")
	items := testutil.DrainQueue(t, sentences, time.Second)
*/
package testutil
