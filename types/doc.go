// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 craftmeet 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、config
等上层模块提供统一的类型契约：角色枚举、会议阶段、记忆与发言类型、
结构化错误以及时间有序的 ID 生成器。

# 核心类型

  - Role              — 封闭的角色集合（craftsman / consumer / manufacturer / designer）
  - Stage             — 有序的会议阶段，只能向前推进
  - MemoryType        — 参与者私有记忆条目类型（可扩展）
  - SpeechType        — 全局时间线发言类型
  - Error / ErrorCode — 结构化错误体系，含 Retryable 标记
  - IDGenerator       — {ms}_{random8} 形式、时间戳严格递增的 ID
*/
package types
