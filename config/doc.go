// Package config 提供 voxflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → VOXFLOW_ 环境变量 的顺序叠加。
// FileWatcher 监听配置文件，Reloader 在两轮对话之间切换到新配置，
// 进行中的一轮始终使用开始时的快照。
package config
