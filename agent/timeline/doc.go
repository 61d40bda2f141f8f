// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 timeline 提供会议级的全局时间线：所有参与者共享、按发布时间全序。

# 存储布局

  - meeting:{session_id}:timeline          发言 ID 的有序日志（score 为毫秒时间戳）
  - meeting:{session_id}:speech:{id}       单条发言字段
  - meeting:{session_id}:participants      参与者 ID 到元数据
  - meeting:{session_id}:stage             当前阶段与更新时间

发言 ID 形如 {ms}_{participant_id}_{random8}，同分时按成员字典序即
(timestamp, participant_id) 排序。

# 可见性

RecordSpeech 返回后，该发言对随后的任何读取可见。GetCurrentContext
总是排除请求者自己的发言，没有可用内容时返回 NoContext。

# 阶段

阶段只能前进。RecordSpeech 的阶段必须等于时间线的当前阶段，
否则返回 STAGE_VIOLATION。
*/
package timeline
