/*
Package adapters 把本地程序接入流水线的协作者接口。

# 概述

流水线只依赖 pipeline 包里的 Transcriber、Translator、CompletionStreamer、
Synthesizer、Player、ContentChecker 接口。本包提供基于子进程的通用实现，
通过 argv 模板接入任意本地引擎（whisper.cpp、ollama、piper、ffplay 等），
以及文本模式下的 LineTranscriber、关键词审查 KeywordChecker 和
Redis 合成缓存 CachedSynthesizer。

# 模板占位符

  - {text}    待翻译或待合成的文本
  - {prompt}  完整提示词
  - {output}  合成音频的输出路径
  - {file}    待播放的音频文件

模板中没有 {text} 或 {prompt} 时，输入改由标准输入传给子进程。
*/
package adapters
